package rate

import "errors"

var (
	// ErrRateLimited is returned by Check when the policy rejects the call.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter store failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidInput is returned for a negative limit, a non-positive window or an unknown strategy.
	ErrInvalidInput = errors.New("invalid rate limit input")
)
