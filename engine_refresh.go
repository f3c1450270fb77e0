package riskAuth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"

	"github.com/MrEthical07/riskAuth/internal"
	"github.com/MrEthical07/riskAuth/jwt"
	"github.com/MrEthical07/riskAuth/session"
)

// Refresh rotates the refresh token of a live session and issues a new
// access token. Presenting an already rotated token revokes the session.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	sid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, AuditSeverityWarning, false, "", "", ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}

	if err := e.throttle(ctx, "refresh:"+sid, e.config.RateLimits.Refresh); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricRefreshRateLimited)
			e.emitRateLimit(ctx, "refresh", "")
		}
		return nil, err
	}

	next, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, ErrUnavailable
	}

	sess, err := e.sessions.Rotate(ctx, sid, internal.HashRefreshSecret(secret), internal.HashRefreshSecret(next))
	if err != nil {
		return nil, e.refreshFailure(ctx, sid, err)
	}

	amr := []string{"pwd"}
	if sess.MFA {
		amr = append(amr, "mfa")
	}
	refresh, err := internal.EncodeRefreshToken(sess.SessionID, next)
	if err != nil {
		return nil, ErrUnavailable
	}
	access, accessExp, err := e.jwt.CreateAccess(jwt.AccessInput{
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		Roles:     sess.Roles,
		AMR:       amr,
	})
	if err != nil {
		e.logger.Error("access token not signed", "user_id", sess.UserID, "error", err)
		return nil, ErrUnavailable
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, AuditSeverityInfo, true, sess.UserID, sess.SessionID, nil, nil)

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        sess.SessionID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

func (e *Engine) refreshFailure(ctx context.Context, sid string, err error) error {
	e.metricInc(MetricRefreshFailure)

	switch {
	case errors.Is(err, session.ErrRefreshReuse):
		e.metricInc(MetricRefreshReuseDetected)
		var userID string
		if sess, getErr := e.sessions.Get(ctx, sid); getErr == nil {
			userID = sess.UserID
		}
		e.logger.Warn("refresh token reuse detected", "session_id", sid, "user_id", userID)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, AuditSeverityCritical, false, userID, sid, session.ErrRefreshReuse, nil)
		return ErrTokenRevoked
	case errors.Is(err, session.ErrSessionRevoked):
		e.emitAudit(ctx, auditEventRefreshInvalid, AuditSeverityWarning, false, "", sid, ErrTokenRevoked, nil)
		return ErrTokenRevoked
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionExpired):
		e.emitAudit(ctx, auditEventRefreshInvalid, AuditSeverityInfo, false, "", sid, ErrTokenExpired, nil)
		return ErrTokenExpired
	default:
		e.logger.Error("session rotation failed", "session_id", sid, "error", err)
		return ErrUnavailable
	}
}

// ValidateAccess verifies an access token and confirms its session is still
// live, so revocation takes effect before the token expires.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := e.now()
	defer e.metricObserve(MetricValidateLatency, start)

	claims, err := e.jwt.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	sess, err := e.sessions.Validate(ctx, claims.SID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionRevoked):
			return nil, ErrTokenRevoked
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionExpired):
			return nil, ErrTokenExpired
		default:
			e.logger.Error("session validation failed", "session_id", claims.SID, "error", err)
			return nil, ErrUnavailable
		}
	}
	if sess.UserID != claims.UID {
		return nil, ErrTokenInvalid
	}

	p := &Principal{
		UserID:    claims.UID,
		SessionID: claims.SID,
		Roles:     claims.Roles,
		MFA:       claims.HasMFA(),
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Logout revokes the session behind refreshToken. A token that was already
// rotated away is rejected; revoking a missing or already revoked session
// succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	sid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return ErrTokenInvalid
	}

	sess, err := e.sessions.Get(ctx, sid)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return nil
	case err != nil:
		e.logger.Error("session lookup failed", "session_id", sid, "error", err)
		return ErrUnavailable
	}
	hash := internal.HashRefreshSecret(secret)
	if subtle.ConstantTimeCompare(hash[:], sess.RefreshHash[:]) != 1 {
		return ErrTokenInvalid
	}

	changed, err := e.sessions.Revoke(ctx, sid)
	if err != nil {
		e.logger.Error("session revoke failed", "session_id", sid, "error", err)
		return ErrUnavailable
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, AuditSeverityInfo, true, sess.UserID, sid, nil, func() map[string]string {
		return map[string]string{"changed": strconv.FormatBool(changed)}
	})
	return nil
}

// LogoutAll revokes every session of userID and forgets its trusted devices.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrInvalidCredentials
	}

	n, err := e.sessions.RevokeAll(ctx, userID)
	if err != nil {
		e.logger.Error("revoke all sessions failed", "user_id", userID, "revoked", n, "error", err)
		return ErrUnavailable
	}
	if err := e.devices.RevokeAll(ctx, userID); err != nil {
		e.logger.Error("device trust revoke failed", "user_id", userID, "error", err)
		return ErrUnavailable
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, AuditSeverityInfo, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return nil
}
