// Package internal contains helpers that are intentionally private to riskAuth:
// secure random generation, refresh token encoding and code hashing.
//
// # Sub-packages
//
//   - config: YAML + environment loading for the riskauthd server
//   - httpapi: chi router exposing the Engine operations
//   - limiters: credential lockout counter
//   - rate: Redis-backed fixed window, sliding window and token bucket limiter
//   - stores: short-lived Redis records for OTP challenges and TOTP enrollment
//
// # What this package must NOT do
//
//   - Export types that appear in the public riskAuth API.
//   - Be imported by any package outside the riskAuth module.
package internal
