package session

import "time"

// Session is the persisted half of a token pair.
type Session struct {
	SessionID   string
	UserID      string
	Roles       []string
	Fingerprint string
	// MFA records that the session was established with a second factor.
	MFA         bool
	RefreshHash [32]byte
	Revoked     bool

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its absolute expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
