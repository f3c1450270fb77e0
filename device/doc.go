// Package device fingerprints clients and remembers which fingerprints a user
// has proven control of.
//
// A fingerprint is a SHA-256 digest over the client network address, the
// declared client identity (User-Agent) and the accepted-content signal. Trust
// records live in Redis with a TTL so every instance sees the same answer.
package device
