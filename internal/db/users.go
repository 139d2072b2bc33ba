package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/documind/user-service/internal/model"
)

const userColumns = `
	id, username, email, password_hash, first_name, last_name, role,
	is_enabled, failed_login_attempts, locked_until, last_login_at,
	created_at, updated_at
`

func (db *Postgres) EnsureUserSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'USER',
			is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			failed_login_attempts INT NOT NULL DEFAULT 0,
			locked_until TIMESTAMPTZ,
			last_login_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx ON users (LOWER(username))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (LOWER(email))`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (db *Postgres) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	query := `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, role, is_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns
	row := db.Pool.QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.Role, user.IsEnabled,
	)
	return scanUser(row)
}

// FindByUsernameOrEmail matches the same value against either column,
// case-insensitively.
func (db *Postgres) FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)
	`
	return scanUser(db.Pool.QueryRow(ctx, query, usernameOrEmail))
}

func (db *Postgres) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(username) = LOWER($1)
	`
	return scanUser(db.Pool.QueryRow(ctx, query, username))
}

func (db *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	return scanUser(db.Pool.QueryRow(ctx, query, id))
}

// RecordFailedAttempt bumps the failed-attempt counter in a single statement
// and sets the lock window when the new value reaches the threshold. The
// increment happens in the database, so concurrent failures on the same row
// cannot lose updates.
func (db *Postgres) RecordFailedAttempt(ctx context.Context, id uuid.UUID, threshold int, lockUntil time.Time) (int, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts
	`
	var attempts int
	if err := db.Pool.QueryRow(ctx, query, id, threshold, lockUntil).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

// ResetFailedAttempts clears the counter and lock window; a non-zero
// lastLogin also stamps the successful login time.
func (db *Postgres) ResetFailedAttempts(ctx context.Context, id uuid.UUID, lastLogin time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    last_login_at = CASE WHEN $2::timestamptz IS NULL THEN last_login_at ELSE $2 END,
		    updated_at = NOW()
		WHERE id = $1
	`
	var stamp *time.Time
	if !lastLogin.IsZero() {
		stamp = &lastLogin
	}
	_, err := db.Pool.Exec(ctx, query, id, stamp)
	return err
}

func (db *Postgres) SetLockedUntil(ctx context.Context, id uuid.UUID, until *time.Time) error {
	query := `
		UPDATE users
		SET locked_until = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, id, until)
	return err
}

func scanUser(row interface{ Scan(dest ...any) error }) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.IsEnabled,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
