package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds configuration for the credential-failure lockout.
type LockoutConfig struct {
	Threshold     int
	Duration      time.Duration
	FailureWindow time.Duration // counter decays after this long without failures
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutState is the persisted failure streak of one user.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    time.Time
}

// Locked reports whether the state blocks logins at now.
func (s LockoutState) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && s.LockedUntil.After(now)
}

const recordFailureScript = `
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local window_ms = tonumber(ARGV[4])
local locked_until = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
local count = tonumber(redis.call("HGET", KEYS[1], "count") or "0")
if locked_until > now then
  return {count, locked_until}
end
if locked_until > 0 then
  redis.call("DEL", KEYS[1])
  locked_until = 0
end
count = redis.call("HINCRBY", KEYS[1], "count", 1)
if count >= threshold then
  locked_until = tonumber(ARGV[5])
  redis.call("HSET", KEYS[1], "locked_until", ARGV[5])
end
local ttl = window_ms
if locked_until - now > ttl then
  ttl = locked_until - now
end
redis.call("PEXPIRE", KEYS[1], ttl)
return {count, locked_until}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// LockoutLimiter tracks consecutive credential failures per user and sets
// lockedUntil when the threshold is reached. Failures recorded while the
// account is locked do not extend the lock. A served lock ends the streak:
// the next failure counts from one.
type LockoutLimiter struct {
	redis  redis.UniversalClient
	config LockoutConfig
	now    func() time.Time
}

// NewLockoutLimiter creates a new lockout limiter.
func NewLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig, now func() time.Time) *LockoutLimiter {
	if now == nil {
		now = time.Now
	}
	return &LockoutLimiter{redis: redisClient, config: cfg, now: now}
}

func (l *LockoutLimiter) key(userID string) string {
	return "alo:" + userID
}

// RecordFailure atomically increments the failure counter and returns the
// resulting state.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, userID string) (LockoutState, error) {
	if l == nil || userID == "" {
		return LockoutState{}, nil
	}

	window := l.config.FailureWindow
	if window < l.config.Duration {
		window = l.config.Duration
	}

	now := l.now()
	vals, err := recordFailureLua.Run(ctx, l.redis, []string{l.key(userID)},
		now.UnixMilli(),
		l.config.Threshold,
		l.config.Duration.Milliseconds(),
		window.Milliseconds(),
		strconv.FormatInt(now.Add(l.config.Duration).UnixMilli(), 10),
	).Int64Slice()
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(vals) != 2 {
		return LockoutState{}, fmt.Errorf("%w: unexpected script reply", ErrLockoutUnavailable)
	}

	return stateFrom(vals[0], vals[1]), nil
}

// State returns the current failure streak for a user. An expired lock
// reads as an empty streak.
func (l *LockoutLimiter) State(ctx context.Context, userID string) (LockoutState, error) {
	if l == nil || userID == "" {
		return LockoutState{}, nil
	}

	vals, err := l.redis.HMGet(ctx, l.key(userID), "count", "locked_until").Result()
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	st := stateFrom(parseInt(vals[0]), parseInt(vals[1]))
	if !st.LockedUntil.IsZero() && !st.Locked(l.now()) {
		return LockoutState{}, nil
	}
	return st, nil
}

// Reset clears the failure counter and lock (successful login or manual unlock).
func (l *LockoutLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil || userID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func stateFrom(count, lockedUntilMS int64) LockoutState {
	s := LockoutState{FailedAttempts: int(count)}
	if lockedUntilMS > 0 {
		s.LockedUntil = time.UnixMilli(lockedUntilMS).UTC()
	}
	return s
}

func parseInt(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
