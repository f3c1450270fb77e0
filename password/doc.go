// Package password hashes and verifies credentials with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification is constant time in the digest comparison. [Argon2.DummyVerify]
// spends the same work as a real verification so unknown usernames cannot be
// told apart by latency.
package password
