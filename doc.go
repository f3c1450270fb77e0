// Package riskAuth is a risk-adaptive authentication and admission engine.
//
// A login is scored from its context (device fingerprint, IP reputation,
// geo-velocity, time of day and recent failures) and answered with tokens,
// a set of challenges (captcha, second factor) or a refusal. Issued sessions
// pair a short-lived EdDSA access token with a rotating opaque refresh token;
// replaying a rotated refresh token revokes the session. Checkpoint re-scores
// a live session and revokes it when the context drifts too far.
//
// # Architecture boundaries
//
// riskAuth is the public surface. It exposes [Engine], [Builder], [Config]
// and the value types returned by Engine methods. Redis scripts, lockout
// counters, rate limiting and audit dispatch live under internal/ and in the
// component packages (session, device, mfa, risk, permission, geo).
//
// Engine methods are safe for concurrent use once [Builder.Build] returns.
// Every state transition that can race (refresh rotation, OTP consumption,
// lockout counting, rate windows) is a single Redis script.
//
// # Failure posture
//
// Errors returned by Engine methods are always one of the exported sentinel
// errors; use [Classify] on wrapped errors from component packages. When
// Redis or the user store is unreachable, operations fail closed with
// [ErrUnavailable].
package riskAuth
