// Package limiters provides domain-specific counters built on Redis.
//
// # Limiters
//
//   - [LockoutLimiter]: per-user credential failure streak with timed lock.
//
// All limiters are nil-safe: calling any method on a nil receiver returns zero values.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import riskAuth or any sibling internal package.
//   - Decide what a lock means for the caller; the engine maps state to errors.
package limiters
