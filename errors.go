package riskAuth

import (
	"errors"

	"github.com/MrEthical07/riskAuth/geo"
	"github.com/MrEthical07/riskAuth/internal/rate"
	"github.com/MrEthical07/riskAuth/jwt"
	"github.com/MrEthical07/riskAuth/mfa"
	"github.com/MrEthical07/riskAuth/session"
)

var (
	// ErrInvalidCredentials is returned for an unknown user, an inactive user
	// or a wrong password. The three cases are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while lockedUntil is in the future,
	// regardless of the password supplied.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrMFARequired classifies a login that stopped at the MFA challenge.
	ErrMFARequired = errors.New("mfa required")
	// ErrInvalidMFAToken is returned for a wrong, expired or replayed second factor.
	ErrInvalidMFAToken = errors.New("invalid mfa token")
	// ErrCaptchaRequired classifies a login that stopped at the captcha challenge.
	ErrCaptchaRequired = errors.New("captcha required")
	// ErrInvalidCaptcha is returned when the captcha verifier rejects the token.
	ErrInvalidCaptcha = errors.New("invalid captcha")
	// ErrHighRiskBlocked is returned when the risk score reaches the block tier.
	ErrHighRiskBlocked = errors.New("access denied")
	// ErrRateLimited is returned when any admission policy rejects the call.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenExpired is returned for an expired access token or refresh session.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for a revoked session or a replayed refresh token.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrPermissionDenied is returned when authorization denies the action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrGeoLookupUnavailable is soft. It only disables the travel factor and
	// never leaves the Engine.
	ErrGeoLookupUnavailable = errors.New("geo lookup unavailable")
	// ErrStepUpRequired is returned by Checkpoint when the session was
	// revoked and a fresh authentication is needed.
	ErrStepUpRequired = errors.New("step-up authentication required")
	// ErrTokenInvalid is returned for malformed or badly signed tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrMFANotEnrolled is returned when a second factor is needed but the
	// user has neither TOTP nor a contact channel.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUnavailable is returned when a backing store fails.
	ErrUnavailable = errors.New("authentication backend unavailable")
)

var taxonomy = []error{
	ErrInvalidCredentials,
	ErrAccountLocked,
	ErrMFARequired,
	ErrInvalidMFAToken,
	ErrCaptchaRequired,
	ErrInvalidCaptcha,
	ErrHighRiskBlocked,
	ErrRateLimited,
	ErrTokenExpired,
	ErrTokenRevoked,
	ErrPermissionDenied,
	ErrGeoLookupUnavailable,
	ErrStepUpRequired,
	ErrTokenInvalid,
	ErrMFANotEnrolled,
	ErrEngineNotReady,
	ErrUnavailable,
}

// Classify maps err onto the exported taxonomy. Errors that already belong to
// it are returned unwrapped; anything unrecognized becomes [ErrUnavailable].
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return known
		}
	}

	switch {
	case errors.Is(err, rate.ErrRateLimited),
		errors.Is(err, mfa.ErrRateLimited):
		return ErrRateLimited
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, session.ErrSessionRevoked),
		errors.Is(err, session.ErrRefreshReuse):
		return ErrTokenRevoked
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenInvalid
	case errors.Is(err, mfa.ErrInvalidCode),
		errors.Is(err, mfa.ErrInvalidInput):
		return ErrInvalidMFAToken
	case errors.Is(err, mfa.ErrNoPendingEnrollment):
		return ErrMFANotEnrolled
	case errors.Is(err, geo.ErrLookupUnavailable):
		return ErrGeoLookupUnavailable
	default:
		// store, delivery and context failures
		return ErrUnavailable
	}
}
