package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrStoreUnavailable wraps Redis failures.
	ErrStoreUnavailable = errors.New("device trust store unavailable")
	// ErrInvalidTTL is returned by Trust for a non-positive ttl.
	ErrInvalidTTL = errors.New("device trust ttl must be > 0")
)

// Store persists DeviceTrustRecords as `dt:<user>:<fingerprint>` keys holding
// expiresAt in unix milliseconds, plus a per-user index set used by RevokeAll.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a trust store. An empty prefix defaults to "dt".
func NewStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if prefix == "" {
		prefix = "dt"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{redis: redisClient, prefix: prefix, now: now}
}

func (s *Store) key(userID, fingerprint string) string {
	return s.prefix + ":" + userID + ":" + fingerprint
}

func (s *Store) indexKey(userID string) string {
	return s.prefix + ":idx:" + userID
}

// IsTrusted reports whether fingerprint has a live trust record for userID.
func (s *Store) IsTrusted(ctx context.Context, fingerprint, userID string) (bool, error) {
	if fingerprint == "" || userID == "" {
		return false, nil
	}

	raw, err := s.redis.Get(ctx, s.key(userID, fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	expMS, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, nil
	}
	return time.UnixMilli(expMS).After(s.now()), nil
}

// Trust upserts the record with expiresAt = now + ttl.
func (s *Store) Trust(ctx context.Context, fingerprint, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if fingerprint == "" || userID == "" {
		return errors.New("device trust requires fingerprint and user")
	}

	expiresAt := s.now().Add(ttl)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(userID, fingerprint), strconv.FormatInt(expiresAt.UnixMilli(), 10), ttl)
		pipe.SAdd(ctx, s.indexKey(userID), fingerprint)
		pipe.Expire(ctx, s.indexKey(userID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Revoke deletes the record immediately.
func (s *Store) Revoke(ctx context.Context, fingerprint, userID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(userID, fingerprint))
		pipe.SRem(ctx, s.indexKey(userID), fingerprint)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAll removes every trusted fingerprint of userID.
func (s *Store) RevokeAll(ctx context.Context, userID string) error {
	fps, err := s.redis.SMembers(ctx, s.indexKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	keys := make([]string, 0, len(fps)+1)
	for _, fp := range fps {
		keys = append(keys, s.key(userID, fp))
	}
	keys = append(keys, s.indexKey(userID))

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
