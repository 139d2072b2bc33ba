package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/documind/user-service/internal/token"
)

const (
	accessKeyPrefix    = "access:"
	refreshKeyPrefix   = "refresh:"
	blacklistKeyPrefix = "blacklist:"
)

// RevocationStore tracks the current token of each type per user and the
// blacklist of individually revoked token strings. Caching is an
// unconditional overwrite: issuing a new token of a type supersedes the
// previous one as "current" without invalidating its signature.
type RevocationStore struct {
	kv KV
}

func NewRevocationStore(kv KV) *RevocationStore {
	return &RevocationStore{kv: kv}
}

func (s *RevocationStore) CacheToken(ctx context.Context, userID uuid.UUID, typ token.Type, tok string, ttl time.Duration) error {
	return s.kv.Set(ctx, tokenKey(userID, typ), tok, ttl)
}

func (s *RevocationStore) CurrentRefresh(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	return s.kv.Get(ctx, refreshKeyPrefix+userID.String())
}

// ClearTokens drops the cached current access and refresh entries for a user.
func (s *RevocationStore) ClearTokens(ctx context.Context, userID uuid.UUID) error {
	if err := s.kv.Delete(ctx, accessKeyPrefix+userID.String()); err != nil {
		return err
	}
	return s.kv.Delete(ctx, refreshKeyPrefix+userID.String())
}

// Blacklist marks an exact token string revoked for its remaining lifetime.
func (s *RevocationStore) Blacklist(ctx context.Context, tok string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	return s.kv.Set(ctx, blacklistKeyPrefix+tok, "true", remaining)
}

func (s *RevocationStore) IsBlacklisted(ctx context.Context, tok string) (bool, error) {
	return s.kv.Exists(ctx, blacklistKeyPrefix+tok)
}

func tokenKey(userID uuid.UUID, typ token.Type) string {
	if typ == token.TypeRefresh {
		return refreshKeyPrefix + userID.String()
	}
	return accessKeyPrefix + userID.String()
}
