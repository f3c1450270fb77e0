package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Strategy selects the counting algorithm for a key.
type Strategy string

const (
	// FixedWindow counts calls per aligned window index.
	FixedWindow Strategy = "fixed_window"
	// SlidingWindow keeps accepted timestamps and trims them to the window.
	SlidingWindow Strategy = "sliding_window"
	// TokenBucket refills limit tokens per window without background ticking.
	TokenBucket Strategy = "token_bucket"
)

// Policy is a named admission rule applied through Check.
type Policy struct {
	Limit    int
	Window   time.Duration
	Strategy Strategy
}

const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if count <= tonumber(ARGV[1]) then
  return 1
end
return 0
`

const slidingWindowScript = `
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
local count = redis.call("ZCARD", KEYS[1])
if count >= tonumber(ARGV[4]) then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`

const tokenBucketScript = `
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = limit
  ts = now
end
local elapsed = now - ts
if elapsed > 0 then
  tokens = math.min(limit, tokens + (elapsed * limit / window))
  ts = now
end
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(ts))
redis.call("PEXPIRE", KEYS[1], window)
return allowed
`

var (
	fixedWindowLua   = redis.NewScript(fixedWindowScript)
	slidingWindowLua = redis.NewScript(slidingWindowScript)
	tokenBucketLua   = redis.NewScript(tokenBucketScript)
)

// Limiter evaluates admission decisions against Redis. All state lives in
// Redis so every instance of the service shares the same counters.
type Limiter struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source. Tests use it to cross window boundaries.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, opts ...Option) *Limiter {
	l := &Limiter{
		redis: redisClient,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether one more call for key fits within limit per window
// under the given strategy, recording the call when it does. A zero limit
// always rejects without touching Redis.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration, strategy Strategy) (bool, error) {
	if limit < 0 || window <= 0 || key == "" {
		return false, ErrInvalidInput
	}
	if limit == 0 {
		return false, nil
	}

	nowMS := l.now().UnixMilli()
	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		windowMS = 1
	}

	var (
		res int64
		err error
	)
	switch strategy {
	case FixedWindow:
		index := nowMS / windowMS
		res, err = fixedWindowLua.Run(ctx, l.redis,
			[]string{"rl:f:" + key + ":" + strconv.FormatInt(index, 10)},
			limit, windowMS,
		).Int64()
	case SlidingWindow:
		res, err = slidingWindowLua.Run(ctx, l.redis,
			[]string{"rl:s:" + key},
			strconv.FormatInt(nowMS, 10),
			strconv.FormatInt(nowMS-windowMS, 10),
			windowMS,
			limit,
			strconv.FormatInt(nowMS, 10)+"-"+uuid.NewString(),
		).Int64()
	case TokenBucket:
		res, err = tokenBucketLua.Run(ctx, l.redis,
			[]string{"rl:t:" + key},
			limit, windowMS, nowMS,
		).Int64()
	default:
		return false, ErrInvalidInput
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return res == 1, nil
}

// Check applies p to key and returns [ErrRateLimited] on rejection.
func (l *Limiter) Check(ctx context.Context, key string, p Policy) error {
	ok, err := l.Allow(ctx, key, p.Limit, p.Window, p.Strategy)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// Validate reports whether p can be evaluated.
func (p Policy) Validate() error {
	if p.Limit < 0 || p.Window <= 0 {
		return ErrInvalidInput
	}
	switch p.Strategy {
	case FixedWindow, SlidingWindow, TokenBucket:
		return nil
	default:
		return ErrInvalidInput
	}
}
