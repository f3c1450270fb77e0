package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEnrollmentNotFound is returned when no TOTP enrollment is pending.
var ErrEnrollmentNotFound = errors.New("totp enrollment not found")

// TOTPStore holds pending enrollment secrets and the set of consumed time
// steps per user.
type TOTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewTOTPStore creates a store under prefix (default "mfa").
func NewTOTPStore(redisClient redis.UniversalClient, prefix string) *TOTPStore {
	if prefix == "" {
		prefix = "mfa"
	}
	return &TOTPStore{redis: redisClient, prefix: prefix}
}

func (s *TOTPStore) pendingKey(userID string) string {
	return s.prefix + ":pending:" + userID
}

func (s *TOTPStore) stepKey(userID string, step int64) string {
	return s.prefix + ":step:" + userID + ":" + strconv.FormatInt(step, 10)
}

// PendingEnrollment is a TOTP secret awaiting its first code, together with
// the backup code hashes that replace the user's set once it is confirmed.
type PendingEnrollment struct {
	Secret       string
	BackupHashes []string
}

// SavePending stores an enrollment awaiting its first successful code,
// replacing any earlier one.
func (s *TOTPStore) SavePending(ctx context.Context, userID string, p PendingEnrollment, ttl time.Duration) error {
	key := s.pendingKey(userID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "secret", p.Secret, "codes", strings.Join(p.BackupHashes, ","))
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

// Pending returns the pending enrollment.
func (s *TOTPStore) Pending(ctx context.Context, userID string) (PendingEnrollment, error) {
	vals, err := s.redis.HGetAll(ctx, s.pendingKey(userID)).Result()
	if err != nil {
		return PendingEnrollment{}, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	secret := vals["secret"]
	if secret == "" {
		return PendingEnrollment{}, ErrEnrollmentNotFound
	}
	p := PendingEnrollment{Secret: secret}
	if codes := vals["codes"]; codes != "" {
		p.BackupHashes = strings.Split(codes, ",")
	}
	return p, nil
}

// ClearPending removes the pending enrollment. It reports whether one existed,
// so two concurrent confirmations settle on a single winner.
func (s *TOTPStore) ClearPending(ctx context.Context, userID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.pendingKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return n > 0, nil
}

// MarkStepUsed records that a time step was accepted for userID. It returns
// false when the step had already been used.
func (s *TOTPStore) MarkStepUsed(ctx context.Context, userID string, step int64, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.stepKey(userID, step), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return ok, nil
}
