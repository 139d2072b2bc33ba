package model

import (
	"time"

	"github.com/google/uuid"
)

type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type UserDTO struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName,omitempty"`
	LastName    string     `json:"lastName,omitempty"`
	Role        Role       `json:"role"`
	IsEnabled   bool       `json:"isEnabled"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func ToUserDTO(u *User) UserDTO {
	return UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		IsEnabled:   u.IsEnabled,
		LastLoginAt: u.LastLoginAt,
	}
}

type LoginResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresIn    int64     `json:"expiresIn"`
	User         UserDTO   `json:"user"`
	LoginTime    time.Time `json:"loginTime"`
}

type ValidateResponse struct {
	Valid bool `json:"valid"`
}
