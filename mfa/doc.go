// Package mfa manages second-factor proofs: emailed or texted one-time codes,
// TOTP enrollment and verification, and single-use backup codes.
//
// Every proof is consumed atomically against Redis. An OTP is deleted by a
// compare-and-delete script, a TOTP time step is claimed with SET NX and a
// backup code is removed by the BackupCodeStore, so a proof satisfies at most
// one verification even under concurrent submission.
//
// Verification attempts are throttled per user through internal/rate and are
// tracked apart from credential failures.
package mfa
