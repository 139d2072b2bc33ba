// Package token mints and verifies the signed claim bundles used as access
// and refresh tokens. The signing secret never leaves this package.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/documind/user-service/internal/model"
)

type Type string

const (
	TypeAccess  Type = "ACCESS"
	TypeRefresh Type = "REFRESH"
)

var (
	ErrExpired   = errors.New("token expired")
	ErrMalformed = errors.New("token invalid")
)

type Claims struct {
	UserID    uuid.UUID  `json:"userId"`
	Role      model.Role `json:"role"`
	TokenType Type       `json:"typ"`
	jwt.RegisteredClaims
}

type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewCodec(secret []byte, accessTTL, refreshTTL time.Duration) *Codec {
	return NewCodecWithClock(secret, accessTTL, refreshTTL, time.Now)
}

// NewCodecWithClock injects the time source used for issuance and expiry
// checks.
func NewCodecWithClock(secret []byte, accessTTL, refreshTTL time.Duration, now func() time.Time) *Codec {
	return &Codec{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
	}
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// Issue signs a token of the given type for the subject. Lifetime depends on
// the token type.
func (c *Codec) Issue(subject string, userID uuid.UUID, role model.Role, typ Type) (string, error) {
	now := c.now()
	ttl := c.accessTTL
	if typ == TypeRefresh {
		ttl = c.refreshTTL
	}

	claims := Claims{
		UserID:    userID,
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.secret)
}

// Parse verifies the signature and expiry and returns the embedded claims.
// Expired tokens return ErrExpired; anything else unverifiable (bad
// signature, wrong algorithm, garbage input) returns ErrMalformed.
func (c *Codec) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrMalformed
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}
	if !parsed.Valid {
		return nil, ErrMalformed
	}

	return claims, nil
}
