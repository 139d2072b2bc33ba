package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/documind/user-service/internal/db"
	"github.com/documind/user-service/internal/model"
)

// EnsureAdmin creates the initial admin account from configuration when it
// does not exist yet. A blank username and password skips the bootstrap.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	if username == "" && password == "" {
		return nil
	}
	if username == "" || email == "" || password == "" {
		return fmt.Errorf("%w: ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD are required together", ErrMisconfigured)
	}

	_, err := s.dir.FindByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !db.IsNoRows(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.dir.CreateUser(ctx, &model.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		IsEnabled:    true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Printf("Bootstrapped admin account: %s", username)
	return nil
}
