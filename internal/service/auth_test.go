package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/documind/user-service/internal/config"
	"github.com/documind/user-service/internal/model"
	"github.com/documind/user-service/internal/store"
	"github.com/documind/user-service/internal/token"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeDirectory struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[uuid.UUID]*model.User)}
}

func (d *fakeDirectory) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := *user
	d.users[user.ID] = &copied
	return &copied, nil
}

func (d *fakeDirectory) FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Username, usernameOrEmail) || strings.EqualFold(u.Email, usernameOrEmail) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (d *fakeDirectory) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Username, username) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (d *fakeDirectory) RecordFailedAttempt(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		until := lockUntil
		u.LockedUntil = &until
	}
	return u.FailedLoginAttempts, nil
}

func (d *fakeDirectory) ResetFailedAttempts(ctx context.Context, id uuid.UUID, lastLogin time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	if !lastLogin.IsZero() {
		stamp := lastLogin
		u.LastLoginAt = &stamp
	}
	return nil
}

func (d *fakeDirectory) SetLockedUntil(ctx context.Context, id uuid.UUID, until *time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.LockedUntil = until
	return nil
}

func (d *fakeDirectory) get(id uuid.UUID) model.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.users[id]
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type memoryKV struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
	fail    bool
}

func newMemoryKV(now func() time.Time) *memoryKV {
	return &memoryKV{now: now, entries: make(map[string]memoryEntry)}
}

var errKVDown = errors.New("kv down")

func (m *memoryKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errKVDown
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *memoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", false, errKVDown
	}
	entry, ok := m.entries[key]
	if !ok || m.now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *memoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errKVDown
	}
	delete(m.entries, key)
	return nil
}

func (m *memoryKV) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errKVDown
	}
	entry, ok := m.entries[key]
	if !ok || m.now().After(entry.expiresAt) {
		return false, nil
	}
	return true, nil
}

type authFixture struct {
	svc   *AuthService
	dir   *fakeDirectory
	kv    *memoryKV
	clock *testClock
	alice *model.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	clock := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	dir := newFakeDirectory()
	kv := newMemoryKV(clock.Now)

	cfg := config.AuthConfig{
		JWTSecret:        "test-signing-secret",
		AccessTTL:        "24h",
		RefreshTTL:       "168h",
		LockoutThreshold: "5",
		LockoutDuration:  "15m",
	}
	svc, err := NewAuthService(dir, store.NewRevocationStore(kv), cfg)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	svc.now = clock.Now
	svc.verifier.now = clock.Now
	svc.codec = token.NewCodecWithClock([]byte(cfg.JWTSecret), 24*time.Hour, 168*time.Hour, clock.Now)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	alice, err := dir.CreateUser(context.Background(), &model.User{
		ID:           uuid.New(),
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		IsEnabled:    true,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return &authFixture{svc: svc, dir: dir, kv: kv, clock: clock, alice: alice}
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if resp.ExpiresIn != 86400 {
		t.Errorf("expiresIn = %d, want 86400", resp.ExpiresIn)
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("tokenType = %q, want Bearer", resp.TokenType)
	}
	if resp.User.Username != "alice" {
		t.Errorf("user = %q, want alice", resp.User.Username)
	}

	if !f.svc.ValidateToken(ctx, resp.AccessToken) {
		t.Error("freshly issued access token should validate")
	}

	stored := f.dir.get(f.alice.ID)
	if stored.LastLoginAt == nil || !stored.LastLoginAt.Equal(f.clock.Now()) {
		t.Error("successful login should stamp lastLoginAt")
	}
}

func TestLoginByEmail(t *testing.T) {
	f := newAuthFixture(t)

	if _, err := f.svc.Login(context.Background(), "ALICE@Example.COM", "correct-horse"); err != nil {
		t.Fatalf("login by email: %v", err)
	}
}

func TestLoginUnknownAccount(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), "nobody", "whatever")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newAuthFixture(t)
	f.dir.users[f.alice.ID].IsEnabled = false

	_, err := f.svc.Login(context.Background(), "alice", "correct-horse")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestLockoutAfterThreshold(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if _, err := f.svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("attempt %d: err = %v, want ErrUnauthorized", i, err)
		}
		if stored := f.dir.get(f.alice.ID); stored.LockedUntil != nil {
			t.Fatalf("attempt %d should not lock the account", i)
		}
	}

	// Fifth failure crosses the threshold and opens the lock window.
	if _, err := f.svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("attempt 5: err = %v, want ErrUnauthorized", err)
	}
	stored := f.dir.get(f.alice.ID)
	if stored.FailedLoginAttempts != 5 {
		t.Errorf("failed attempts = %d, want 5", stored.FailedLoginAttempts)
	}
	if stored.LockedUntil == nil || !stored.LockedUntil.Equal(f.clock.Now().Add(15*time.Minute)) {
		t.Fatalf("lockedUntil = %v, want now+15m", stored.LockedUntil)
	}

	// Correct password during the window is still rejected.
	if _, err := f.svc.Login(ctx, "alice", "correct-horse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("locked login: err = %v, want ErrUnauthorized", err)
	}

	f.clock.Advance(16 * time.Minute)
	if _, err := f.svc.Login(ctx, "alice", "correct-horse"); err != nil {
		t.Fatalf("login after window: %v", err)
	}
	stored = f.dir.get(f.alice.ID)
	if stored.FailedLoginAttempts != 0 || stored.LockedUntil != nil {
		t.Errorf("counter/lock not reset: attempts=%d lockedUntil=%v", stored.FailedLoginAttempts, stored.LockedUntil)
	}
}

func TestAccessTokenExpires(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !f.svc.ValidateToken(ctx, resp.AccessToken) {
		t.Fatal("token should be valid immediately after login")
	}

	f.clock.Advance(25 * time.Hour)
	if f.svc.ValidateToken(ctx, resp.AccessToken) {
		t.Fatal("token should be invalid past its expiry")
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if revoked := f.svc.Logout(ctx, resp.AccessToken); !revoked {
		t.Error("first logout should report a revocation")
	}
	if f.svc.ValidateToken(ctx, resp.AccessToken) {
		t.Fatal("token should not validate after logout")
	}

	// Idempotent: nothing left to revoke, still no error.
	if revoked := f.svc.Logout(ctx, resp.AccessToken); revoked {
		t.Error("second logout should be a no-op")
	}
}

func TestLogoutNeverFails(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if revoked := f.svc.Logout(ctx, "not-a-token"); revoked {
		t.Error("garbage token should revoke nothing")
	}

	resp, err := f.svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	f.kv.fail = true
	if revoked := f.svc.Logout(ctx, resp.AccessToken); revoked {
		t.Error("logout against a failing store should report nothing revoked")
	}
}

func TestRefreshRotation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.clock.Advance(time.Minute)
	second, err := f.svc.RefreshToken(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.AccessToken == first.AccessToken || second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh should rotate both tokens")
	}

	current, ok, err := store.NewRevocationStore(f.kv).CurrentRefresh(ctx, f.alice.ID)
	if err != nil || !ok {
		t.Fatalf("current refresh: ok=%v err=%v", ok, err)
	}
	if current != second.RefreshToken {
		t.Error("cached current refresh should be the newest one")
	}

	// The superseded refresh token is cryptographically valid but stale.
	if _, err := f.svc.RefreshToken(ctx, first.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stale refresh: err = %v, want ErrUnauthorized", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.svc.RefreshToken(ctx, resp.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	f := newAuthFixture(t)

	if _, err := f.svc.RefreshToken(context.Background(), "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestRefreshRejectsExpired(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.clock.Advance(169 * time.Hour)
	if _, err := f.svc.RefreshToken(ctx, resp.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestLockAndUnlockAccount(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if err := f.svc.LockAccount(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lock unknown: err = %v, want ErrNotFound", err)
	}

	if err := f.svc.LockAccount(ctx, "alice"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := f.svc.Login(ctx, "alice", "correct-horse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("locked login: err = %v, want ErrUnauthorized", err)
	}

	if err := f.svc.UnlockAccount(ctx, "alice"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	stored := f.dir.get(f.alice.ID)
	if stored.LockedUntil != nil || stored.FailedLoginAttempts != 0 {
		t.Error("unlock should clear the window and reset the counter")
	}
	if _, err := f.svc.Login(ctx, "alice", "correct-horse"); err != nil {
		t.Fatalf("login after unlock: %v", err)
	}
}

func TestLoginStoreUnavailable(t *testing.T) {
	f := newAuthFixture(t)
	f.kv.fail = true

	_, err := f.svc.Login(context.Background(), "alice", "correct-horse")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestAuthenticate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	user, err := f.svc.Authenticate(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Username != "alice" || user.ID != f.alice.ID || user.Role != model.RoleUser {
		t.Errorf("principal = %+v", user)
	}

	// Refresh tokens do not authorize requests.
	if _, err := f.svc.Authenticate(ctx, resp.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh as bearer: err = %v, want ErrUnauthorized", err)
	}
}
