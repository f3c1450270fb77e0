package riskAuth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/riskAuth/geo"
	"github.com/MrEthical07/riskAuth/mfa"
	"github.com/MrEthical07/riskAuth/risk"
)

// ErrUserNotFound is returned by [UserStore] lookups for unknown users. The
// Engine never surfaces it; callers see [ErrInvalidCredentials].
var ErrUserNotFound = errors.New("user not found")

// UserIdentity is the account record consumed by the Engine. Lockout fields
// are a mirror: the authoritative counter lives in Redis.
type UserIdentity struct {
	ID             string
	Username       string
	CredentialHash string
	Roles          []string
	// Attributes feed ABAC user_attr conditions.
	Attributes map[string]string
	// ContactChannels maps an OTP channel ("sms", "email") to its destination.
	ContactChannels map[string]string

	MFAEnabled bool
	MFASecret  string

	FailedAttempts int
	LockedUntil    time.Time

	LastLoginAt  time.Time
	LastKnownIP  string
	LastKnownGeo *geo.Location

	Active bool
}

// LoginRecord is written back after a fully successful authentication.
type LoginRecord struct {
	At  time.Time
	IP  string
	Geo *geo.Location
}

// UserStore is the persisted user/credential/role collaborator. Writes made
// by the Engine are mirrors of Redis state and are treated as best-effort.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*UserIdentity, error)
	GetUserByID(ctx context.Context, userID string) (*UserIdentity, error)
	RecordFailedLogin(ctx context.Context, userID string, failedAttempts int, lockedUntil time.Time) error
	RecordSuccessfulLogin(ctx context.Context, userID string, rec LoginRecord) error
	SaveMFASecret(ctx context.Context, userID, secret string) error
	mfa.BackupCodeStore
}

// CaptchaVerifier checks a solved captcha token with the external provider.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// AuthenticateRequest carries one login attempt. Request attributes (IP,
// User-Agent, Accept) travel on the context.
type AuthenticateRequest struct {
	Username     string
	Password     string
	MFAToken     string
	CaptchaToken string
}

// AuthStatus is the terminal state of an Authenticate call that did not fail.
type AuthStatus string

const (
	StatusAuthenticated     AuthStatus = "authenticated"
	StatusChallengeRequired AuthStatus = "challenge_required"
)

// Challenge names a proof the caller must resubmit with.
type Challenge string

const (
	ChallengeCaptcha Challenge = "captcha"
	ChallengeMFA     Challenge = "mfa"
)

// TokenPair is an access JWT plus the opaque rotating refresh token.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	SessionID        string    `json:"session_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AuthResult is returned by [Engine.Authenticate] with a nil error either
// when tokens were issued or when the caller must answer a challenge.
type AuthResult struct {
	Status     AuthStatus
	UserID     string
	Challenges []Challenge
	// MFAMethod is "totp" when the user must enter an authenticator code,
	// otherwise the channel an OTP was sent to.
	MFAMethod    string
	MFAExpiresAt time.Time
	Tokens       *TokenPair
	Assessment   risk.Assessment
}

// Err classifies a challenge result: [ErrCaptchaRequired] when a captcha is
// outstanding, [ErrMFARequired] when only MFA is, nil once authenticated.
func (r *AuthResult) Err() error {
	if r == nil || r.Status != StatusChallengeRequired {
		return nil
	}
	for _, c := range r.Challenges {
		if c == ChallengeCaptcha {
			return ErrCaptchaRequired
		}
	}
	return ErrMFARequired
}

// Requires reports whether c is among the outstanding challenges.
func (r *AuthResult) Requires(c Challenge) bool {
	if r == nil {
		return false
	}
	for _, got := range r.Challenges {
		if got == c {
			return true
		}
	}
	return false
}

// Principal is the validated identity behind an access token.
type Principal struct {
	UserID    string
	SessionID string
	Roles     []string
	MFA       bool
	ExpiresAt time.Time
}

// MFAEnrollment is returned once by [Engine.SetupMFA].
type MFAEnrollment = mfa.Enrollment
