package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RevocationStore is a shared, eventually-expiring denylist of token
// identifiers. Existence of a key means the token is revoked; entries expire
// with the natural lifetime of the token they denylist, so no cleanup job is
// needed.
type RevocationStore struct {
	cache Cache
}

// NewRevocationStore wraps a TTL-aware cache client.
func NewRevocationStore(cache Cache) (*RevocationStore, error) {
	if cache == nil {
		return nil, errors.New("cache client is required")
	}
	return &RevocationStore{cache: cache}, nil
}

// Put denylists a token identifier for the remaining validity window of the
// token it belongs to. Re-writing the same id is harmless.
func (s *RevocationStore) Put(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return fmt.Errorf("%w: empty token id", ErrInvalidInput)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: non-positive ttl", ErrInvalidInput)
	}
	if err := s.cache.Set(ctx, jti, "", ttl); err != nil {
		return fmt.Errorf("revocation put %s: %w", jti, err)
	}
	return nil
}

// Exists reports whether the identifier has been revoked. A cache failure is
// returned as an error, never as "not revoked": callers must fail closed.
func (s *RevocationStore) Exists(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	revoked, err := s.cache.Exists(ctx, jti)
	if err != nil {
		return false, fmt.Errorf("revocation lookup %s: %w", jti, err)
	}
	return revoked, nil
}
