// Package risk scores a login attempt or an in-session checkpoint.
//
// The score is additive over a fixed set of factors and clamped to [0, 100]:
//
//	new_device         fingerprint not trusted for the user
//	malicious_ip       address reported by ThreatIntel
//	impossible_travel  geo.Evaluator flags the move since the last login
//	suspicious_timing  local hour outside the safe window
//	repeated_failures  per failure beyond the grace count
//
// Requirements are derived from the score: block, mfa (only for untrusted
// devices), captcha and additional verification. Collaborator failures never
// fail an assessment; a device-store error counts as untrusted and the other
// factors are skipped.
package risk
