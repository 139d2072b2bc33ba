package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/documind/user-service/internal/model"
)

// UserDirectory is the account lookup/persist boundary. Absent accounts are
// reported with pgx.ErrNoRows (checked via db.IsNoRows); any other error is
// treated as a downstream availability failure.
type UserDirectory interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	RecordFailedAttempt(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (int, error)
	ResetFailedAttempts(ctx context.Context, id uuid.UUID, lastLogin time.Time) error
	SetLockedUntil(ctx context.Context, id uuid.UUID, until *time.Time) error
}

type VerifyResult int

const (
	VerifyOK VerifyResult = iota
	VerifyInvalidCredentials
	VerifyAccountLocked
	VerifyAccountDisabled
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyOK:
		return "ok"
	case VerifyInvalidCredentials:
		return "invalid_credentials"
	case VerifyAccountLocked:
		return "account_locked"
	case VerifyAccountDisabled:
		return "account_disabled"
	}
	return "unknown"
}

// CredentialVerifier checks a presented password against an account and
// maintains the account's failed-attempt counter and lock window.
type CredentialVerifier struct {
	dir          UserDirectory
	threshold    int
	lockDuration time.Duration
	now          func() time.Time
}

func NewCredentialVerifier(dir UserDirectory, threshold int, lockDuration time.Duration) *CredentialVerifier {
	return &CredentialVerifier{
		dir:          dir,
		threshold:    threshold,
		lockDuration: lockDuration,
		now:          time.Now,
	}
}

// Verify runs the account-status checks and the constant-time password
// comparison, committing counter updates through the directory before
// returning. A non-nil error means the directory write failed; the
// VerifyResult is only meaningful when the error is nil.
func (v *CredentialVerifier) Verify(ctx context.Context, user *model.User, password string) (VerifyResult, error) {
	now := v.now()

	if !user.IsEnabled {
		log.Printf("Login attempt for disabled account: %s", user.Username)
		return VerifyAccountDisabled, nil
	}

	if user.IsLockedAt(now) {
		log.Printf("Login attempt for locked account: %s (locked until %s)", user.Username, user.LockedUntil.Format(time.RFC3339))
		return VerifyAccountLocked, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		attempts, recErr := v.dir.RecordFailedAttempt(ctx, user.ID, v.threshold, now.Add(v.lockDuration))
		if recErr != nil {
			return VerifyInvalidCredentials, recErr
		}
		log.Printf("Failed login attempt %d for user: %s", attempts, user.Username)
		return VerifyInvalidCredentials, nil
	}

	if err := v.dir.ResetFailedAttempts(ctx, user.ID, now); err != nil {
		return VerifyOK, err
	}
	return VerifyOK, nil
}
