package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/documind/user-service/internal/config"
	"github.com/documind/user-service/internal/db"
	"github.com/documind/user-service/internal/model"
	"github.com/documind/user-service/internal/token"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not found")
	ErrUnavailable   = errors.New("downstream unavailable")
	ErrMisconfigured = errors.New("auth config invalid")
)

// TokenStore is the revocation-state boundary backed by the expiring
// key-value store.
type TokenStore interface {
	CacheToken(ctx context.Context, userID uuid.UUID, typ token.Type, tok string, ttl time.Duration) error
	CurrentRefresh(ctx context.Context, userID uuid.UUID) (string, bool, error)
	ClearTokens(ctx context.Context, userID uuid.UUID) error
	Blacklist(ctx context.Context, tok string, remaining time.Duration) error
	IsBlacklisted(ctx context.Context, tok string) (bool, error)
}

// AuthService is the session orchestrator: it composes the credential
// verifier, the token codec and the revocation store into the login,
// refresh, logout and validate operations.
type AuthService struct {
	dir          UserDirectory
	tokens       TokenStore
	codec        *token.Codec
	verifier     *CredentialVerifier
	lockDuration time.Duration
	now          func() time.Time
}

func NewAuthService(dir UserDirectory, tokens TokenStore, cfg config.AuthConfig) (*AuthService, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required", ErrMisconfigured)
	}

	accessTTL, err := time.ParseDuration(cfg.AccessTTL)
	if err != nil || accessTTL <= 0 {
		return nil, fmt.Errorf("%w: invalid JWT_ACCESS_TTL", ErrMisconfigured)
	}

	refreshTTL, err := time.ParseDuration(cfg.RefreshTTL)
	if err != nil || refreshTTL <= 0 {
		return nil, fmt.Errorf("%w: invalid JWT_REFRESH_TTL", ErrMisconfigured)
	}

	threshold, err := strconv.Atoi(cfg.LockoutThreshold)
	if err != nil || threshold <= 0 {
		return nil, fmt.Errorf("%w: invalid LOCKOUT_THRESHOLD", ErrMisconfigured)
	}

	lockDuration, err := time.ParseDuration(cfg.LockoutDuration)
	if err != nil || lockDuration <= 0 {
		return nil, fmt.Errorf("%w: invalid LOCKOUT_DURATION", ErrMisconfigured)
	}

	return &AuthService{
		dir:          dir,
		tokens:       tokens,
		codec:        token.NewCodec([]byte(cfg.JWTSecret), accessTTL, refreshTTL),
		verifier:     NewCredentialVerifier(dir, threshold, lockDuration),
		lockDuration: lockDuration,
		now:          time.Now,
	}, nil
}

// Login authenticates the credentials and issues a fresh access/refresh
// pair. Every credential failure collapses to ErrUnauthorized; the reason
// stays in the log.
func (s *AuthService) Login(ctx context.Context, usernameOrEmail, password string) (*model.LoginResponse, error) {
	user, err := s.dir.FindByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if db.IsNoRows(err) {
			log.Printf("Login failed for %s: unknown account", usernameOrEmail)
			return nil, fmt.Errorf("%w: invalid username/email or password", ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result, err := s.verifier.Verify(ctx, user, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch result {
	case VerifyOK:
	case VerifyAccountLocked:
		return nil, fmt.Errorf("%w: account is temporarily locked due to multiple failed login attempts", ErrUnauthorized)
	case VerifyAccountDisabled:
		return nil, fmt.Errorf("%w: account is disabled", ErrUnauthorized)
	default:
		return nil, fmt.Errorf("%w: invalid username/email or password", ErrUnauthorized)
	}

	now := s.now()
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	resp, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	log.Printf("User %s logged in successfully", user.Username)
	return resp, nil
}

// RefreshToken exchanges the currently cached refresh token for a new
// access/refresh pair. A presented token that is no longer the cached
// current one is rejected even when its signature and expiry check out.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*model.LoginResponse, error) {
	claims, err := s.codec.Parse(refreshToken)
	if err != nil {
		log.Printf("Refresh rejected: %v", err)
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}
	if claims.TokenType != token.TypeRefresh {
		log.Printf("Refresh rejected: token type %s", claims.TokenType)
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}

	current, ok, err := s.tokens.CurrentRefresh(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok || current != refreshToken {
		log.Printf("Refresh rejected for user %s: token is not current", claims.Subject)
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}

	user, err := s.dir.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	log.Printf("Token refreshed for user %s", user.Username)
	return resp, nil
}

// Logout blacklists the exact token string for its remaining lifetime and
// drops the cached current entries for the user. It never fails: internal
// errors are logged, and the returned boolean reports whether anything was
// actually revoked.
func (s *AuthService) Logout(ctx context.Context, accessToken string) bool {
	claims, err := s.codec.Parse(accessToken)
	if err != nil {
		log.Printf("Logout with unusable token: %v", err)
		return false
	}

	already, err := s.tokens.IsBlacklisted(ctx, accessToken)
	if err != nil {
		log.Printf("Error checking blacklist for user %s: %v", claims.Subject, err)
	}

	revoked := false
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if !already && remaining > 0 {
		if err := s.tokens.Blacklist(ctx, accessToken, remaining); err != nil {
			log.Printf("Error blacklisting token for user %s: %v", claims.Subject, err)
		} else {
			revoked = true
		}
	}

	if err := s.tokens.ClearTokens(ctx, claims.UserID); err != nil {
		log.Printf("Error clearing cached tokens for user %s: %v", claims.Subject, err)
	}

	if revoked {
		log.Printf("User %s logged out", claims.Subject)
	}
	return revoked
}

// ValidateToken reports whether the token is currently acceptable: not
// blacklisted, verifiable, unexpired, and carrying its own subject. The
// blacklist read is the only side trip, keeping this cheap for the
// per-request hot path.
func (s *AuthService) ValidateToken(ctx context.Context, tok string) bool {
	blacklisted, err := s.tokens.IsBlacklisted(ctx, tok)
	if err != nil {
		log.Printf("Token validation failed: %v", err)
		return false
	}
	if blacklisted {
		return false
	}

	claims, err := s.codec.Parse(tok)
	if err != nil {
		return false
	}
	return claims.Subject != ""
}

// Authenticate validates an access token and resolves its principal for
// request handling.
func (s *AuthService) Authenticate(ctx context.Context, tok string) (*model.AuthUser, error) {
	blacklisted, err := s.tokens.IsBlacklisted(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if blacklisted {
		return nil, ErrUnauthorized
	}

	claims, err := s.codec.Parse(tok)
	if err != nil || claims.TokenType != token.TypeAccess || claims.Subject == "" {
		return nil, ErrUnauthorized
	}

	return &model.AuthUser{
		ID:       claims.UserID,
		Username: claims.Subject,
		Role:     claims.Role,
	}, nil
}

// LockAccount is the administrative override that starts a lock window now.
func (s *AuthService) LockAccount(ctx context.Context, usernameOrEmail string) error {
	user, err := s.findAccount(ctx, usernameOrEmail)
	if err != nil {
		return err
	}

	until := s.now().Add(s.lockDuration)
	if err := s.dir.SetLockedUntil(ctx, user.ID, &until); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Printf("Account locked: %s (until %s)", user.Username, until.Format(time.RFC3339))
	return nil
}

// UnlockAccount clears the lock window and resets the failed-attempt counter.
func (s *AuthService) UnlockAccount(ctx context.Context, usernameOrEmail string) error {
	user, err := s.findAccount(ctx, usernameOrEmail)
	if err != nil {
		return err
	}

	if err := s.dir.ResetFailedAttempts(ctx, user.ID, time.Time{}); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Printf("Account unlocked: %s", user.Username)
	return nil
}

func (s *AuthService) findAccount(ctx context.Context, usernameOrEmail string) (*model.User, error) {
	user, err := s.dir.FindByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, usernameOrEmail)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return user, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *model.User) (*model.LoginResponse, error) {
	accessToken, err := s.codec.Issue(user.Username, user.ID, user.Role, token.TypeAccess)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.codec.Issue(user.Username, user.ID, user.Role, token.TypeRefresh)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.CacheToken(ctx, user.ID, token.TypeAccess, accessToken, s.codec.AccessTTL()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := s.tokens.CacheToken(ctx, user.ID, token.TypeRefresh, refreshToken, s.codec.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &model.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
		User:         model.ToUserDTO(user),
		LoginTime:    s.now(),
	}, nil
}
