package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrChallengeNotFound is returned when no live challenge exists for the user.
	ErrChallengeNotFound = errors.New("otp challenge not found")
	// ErrChallengeBackend wraps Redis failures.
	ErrChallengeBackend = errors.New("otp challenge backend unavailable")
)

// ConsumeResult is the outcome of a compare-and-delete.
type ConsumeResult int

const (
	// ConsumeNotFound means no challenge was outstanding (never issued, used or expired).
	ConsumeNotFound ConsumeResult = iota
	// ConsumeMismatch means a challenge exists but the code did not match; it stays live.
	ConsumeMismatch
	// ConsumeOK means the code matched and the challenge was deleted.
	ConsumeOK
)

// OTPChallenge is the public view of an outstanding code.
type OTPChallenge struct {
	UserID    string
	Channel   string
	ExpiresAt time.Time
}

const consumeChallengeScript = `
local data = redis.call("HMGET", KEYS[1], "hash", "exp")
if not data[1] then
  return 0
end
if tonumber(data[2]) <= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  return 0
end
if data[1] ~= ARGV[1] then
  return 1
end
redis.call("DEL", KEYS[1])
return 2
`

var consumeChallengeLua = redis.NewScript(consumeChallengeScript)

// OTPChallengeStore keeps at most one outstanding code per user.
type OTPChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewOTPChallengeStore creates a store under prefix (default "otp").
func NewOTPChallengeStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *OTPChallengeStore {
	if prefix == "" {
		prefix = "otp"
	}
	if now == nil {
		now = time.Now
	}
	return &OTPChallengeStore{redis: redisClient, prefix: prefix, now: now}
}

func (s *OTPChallengeStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Save replaces any outstanding challenge for the user.
func (s *OTPChallengeStore) Save(ctx context.Context, userID, codeHash, channel string, ttl time.Duration) (OTPChallenge, error) {
	if userID == "" || codeHash == "" || ttl <= 0 {
		return OTPChallenge{}, errors.New("invalid otp challenge")
	}

	key := s.key(userID)
	expiresAt := s.now().Add(ttl)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"hash", codeHash,
			"channel", channel,
			"exp", strconv.FormatInt(expiresAt.UnixMilli(), 10),
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return OTPChallenge{}, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}

	return OTPChallenge{UserID: userID, Channel: channel, ExpiresAt: expiresAt.UTC()}, nil
}

// Consume deletes the challenge only when codeHash matches.
func (s *OTPChallengeStore) Consume(ctx context.Context, userID, codeHash string) (ConsumeResult, error) {
	res, err := consumeChallengeLua.Run(ctx, s.redis, []string{s.key(userID)},
		codeHash,
		strconv.FormatInt(s.now().UnixMilli(), 10),
	).Int64()
	if err != nil {
		return ConsumeNotFound, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return ConsumeResult(res), nil
}

// Get returns the outstanding challenge metadata.
func (s *OTPChallengeStore) Get(ctx context.Context, userID string) (OTPChallenge, error) {
	vals, err := s.redis.HMGet(ctx, s.key(userID), "channel", "exp").Result()
	if err != nil {
		return OTPChallenge{}, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	channel, _ := vals[0].(string)
	expRaw, _ := vals[1].(string)
	if expRaw == "" {
		return OTPChallenge{}, ErrChallengeNotFound
	}
	expMS, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return OTPChallenge{}, ErrChallengeNotFound
	}
	expiresAt := time.UnixMilli(expMS).UTC()
	if !expiresAt.After(s.now()) {
		return OTPChallenge{}, ErrChallengeNotFound
	}
	return OTPChallenge{UserID: userID, Channel: channel, ExpiresAt: expiresAt}, nil
}
