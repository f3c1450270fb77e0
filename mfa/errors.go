package mfa

import "errors"

var (
	// ErrRateLimited is returned when the per-user verify or issue budget is spent.
	ErrRateLimited = errors.New("mfa attempts rate limited")
	// ErrNoPendingEnrollment is returned by ConfirmTOTP without a live SetupTOTP.
	ErrNoPendingEnrollment = errors.New("no pending totp enrollment")
	// ErrInvalidCode is returned by ConfirmTOTP when the code does not match.
	ErrInvalidCode = errors.New("invalid mfa code")
	// ErrNoDeliverer is returned by IssueOTP when no Deliverer is configured.
	ErrNoDeliverer = errors.New("no otp deliverer configured")
	// ErrDeliveryFailed wraps Deliverer errors.
	ErrDeliveryFailed = errors.New("otp delivery failed")
	// ErrUnavailable wraps store failures.
	ErrUnavailable = errors.New("mfa backend unavailable")
	// ErrInvalidInput is returned for empty user ids or destinations.
	ErrInvalidInput = errors.New("invalid mfa input")
)
