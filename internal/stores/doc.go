// Package stores provides Redis-backed, short-lived records for the MFA
// lifecycle: issued one-time codes, pending TOTP enrollments and consumed
// TOTP time steps.
//
// # Design
//
// Codes are stored as owner-bound SHA-256 digests, never in plaintext.
// Consumption is a single Lua compare-and-delete so two concurrent verifies
// of the same code cannot both succeed. A mismatch leaves the record intact
// until it expires.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// challenge records. It does NOT generate codes, enforce attempt limits or
// make authentication decisions; the mfa package does.
//
// # What this package must NOT do
//
//   - Import riskAuth or any sibling internal package.
//   - Log or expose plaintext secrets.
package stores
