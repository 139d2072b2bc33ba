package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleUser      Role = "USER"
	RoleViewer    Role = "VIEWER"
	RoleAPIClient Role = "API_CLIENT"
)

// roleAuthorities maps each role to its authorization string. Closed table,
// no runtime concatenation.
var roleAuthorities = map[Role]string{
	RoleAdmin:     "ROLE_ADMIN",
	RoleUser:      "ROLE_USER",
	RoleViewer:    "ROLE_VIEWER",
	RoleAPIClient: "ROLE_API_CLIENT",
}

func (r Role) Valid() bool {
	_, ok := roleAuthorities[r]
	return ok
}

func (r Role) Authority() string {
	return roleAuthorities[r]
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// CanModify reports whether the role carries write access.
func (r Role) CanModify() bool {
	return r == RoleAdmin || r == RoleUser
}

type User struct {
	ID                  uuid.UUID
	Username            string
	Email               string
	PasswordHash        string
	FirstName           string
	LastName            string
	Role                Role
	IsEnabled           bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLockedAt reports whether the account is inside its lockout window.
func (u *User) IsLockedAt(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

type AuthUser struct {
	ID       uuid.UUID
	Username string
	Role     Role
}
