// Package session provides Redis-backed refresh sessions with atomic token
// rotation.
//
// # Storage
//
// Each session is a hash at `as:<sid>` holding the owner, roles, device
// fingerprint, the SHA-256 of the current refresh secret and the absolute
// expiry. A per-user set `au:<uid>` indexes live sessions for sign-out
// everywhere.
//
// # Rotation
//
// Rotate runs one Lua script: it rejects missing, revoked and expired
// sessions, and on a hash mismatch (a replayed, already rotated secret)
// revokes the whole session before failing. A revoked session stays readable
// until its TTL so later replays keep failing as revoked rather than unknown.
//
// # What this package must NOT do
//
//   - Import riskAuth, jwt, or permission (no upward imports).
//   - Store plaintext refresh secrets.
package session
