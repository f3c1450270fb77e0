// Package rate provides the Redis-backed admission primitive used by every
// throttled operation in riskAuth.
//
// # Strategies
//
//   - fixed window: INCR on a key bound to the current window index, PEXPIRE on first hit.
//   - sliding window: sorted set of accepted timestamps trimmed to the window.
//   - token bucket: hash of {tokens, ts} refilled lazily at limit/window.
//
// Each strategy is a single Lua script so the read-check-write is atomic
// against Redis. Key prefixes:
//   - rl:f: fixed window
//   - rl:s: sliding window
//   - rl:t: token bucket
//
// # What this package must NOT do
//
//   - Decide what happens after a rejection (callers map it to their own error).
//   - Be imported outside the riskAuth module.
package rate
