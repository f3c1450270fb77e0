package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PassStore remembers that a challenge was already solved for a user on a
// device, so a multi-step login does not ask for the same proof twice.
type PassStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewPassStore creates a store under prefix (default "pass").
func NewPassStore(redisClient redis.UniversalClient, prefix string) *PassStore {
	if prefix == "" {
		prefix = "pass"
	}
	return &PassStore{redis: redisClient, prefix: prefix}
}

func (s *PassStore) key(kind, userID, fingerprint string) string {
	return s.prefix + ":" + kind + ":" + userID + ":" + fingerprint
}

// Mark records a solved challenge of kind for ttl.
func (s *PassStore) Mark(ctx context.Context, kind, userID, fingerprint string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(kind, userID, fingerprint), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

// Has reports whether a live pass exists.
func (s *PassStore) Has(ctx context.Context, kind, userID, fingerprint string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(kind, userID, fingerprint)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return n > 0, nil
}

// Clear removes the pass once the login it served has completed.
func (s *PassStore) Clear(ctx context.Context, kind, userID, fingerprint string) error {
	if err := s.redis.Del(ctx, s.key(kind, userID, fingerprint)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}
