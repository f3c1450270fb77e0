package riskAuth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/riskAuth/risk"
)

// Checkpoint re-scores an active session from the current request context.
// It runs inline on sensitive routes. When the score exceeds
// Checkpoint.StepUpAbove the session is revoked, the device loses its trust
// and ErrStepUpRequired is returned together with the assessment.
func (e *Engine) Checkpoint(ctx context.Context, accessToken string) (*risk.Assessment, error) {
	principal, err := e.ValidateAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return e.checkpoint(ctx, principal)
}

// CheckpointPrincipal is [Engine.Checkpoint] for callers that already hold a
// validated [Principal], such as middleware stacked behind a bearer guard.
func (e *Engine) CheckpointPrincipal(ctx context.Context, p *Principal) (*risk.Assessment, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if p == nil || p.UserID == "" || p.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return e.checkpoint(ctx, p)
}

func (e *Engine) checkpoint(ctx context.Context, p *Principal) (*risk.Assessment, error) {
	user, err := e.activeUser(ctx, p.UserID)
	if err != nil {
		// a deactivated user cannot keep a session
		if errors.Is(err, ErrInvalidCredentials) {
			e.revokeForStepUp(ctx, p, "")
			return nil, ErrStepUpRequired
		}
		return nil, err
	}

	state, err := e.lockout.State(ctx, user.ID)
	if err != nil {
		e.logger.Error("lockout state unavailable", "user_id", user.ID, "error", err)
		return nil, ErrUnavailable
	}

	a := e.assess(ctx, risk.Subject{
		ID:             user.ID,
		FailedAttempts: state.FailedAttempts,
		LastLoginAt:    user.LastLoginAt,
		LastKnownGeo:   user.LastKnownGeo,
	})

	if a.Score <= e.config.Checkpoint.StepUpAbove {
		e.metricInc(MetricCheckpointPassed)
		e.emitAudit(ctx, auditEventCheckpointPassed, AuditSeverityInfo, true, user.ID, p.SessionID, nil, func() map[string]string {
			return assessmentMetadata(a)
		})
		return &a, nil
	}

	e.revokeForStepUp(ctx, p, a.Fingerprint)
	e.metricInc(MetricStepUpRequired)
	e.logger.Warn("checkpoint demanded step-up",
		"user_id", user.ID,
		"session_id", p.SessionID,
		"score", a.Score,
		"factors", strings.Join(a.FactorNames(), ","),
	)
	e.emitAudit(ctx, auditEventStepUpRequired, AuditSeverityWarning, false, user.ID, p.SessionID, ErrStepUpRequired, func() map[string]string {
		return assessmentMetadata(a)
	})
	return &a, ErrStepUpRequired
}

// revokeForStepUp drops the session and the trust of the device it was
// established on and, when different, the device presenting it now.
func (e *Engine) revokeForStepUp(ctx context.Context, p *Principal, fingerprint string) {
	var sessionFP string
	if sess, err := e.sessions.Get(ctx, p.SessionID); err == nil {
		sessionFP = sess.Fingerprint
	}
	if _, err := e.sessions.Revoke(ctx, p.SessionID); err != nil {
		e.logger.Error("step-up session revoke failed", "session_id", p.SessionID, "error", err)
	}
	fps := []string{sessionFP}
	if fingerprint != sessionFP {
		fps = append(fps, fingerprint)
	}
	for _, fp := range fps {
		if fp == "" {
			continue
		}
		if err := e.devices.Revoke(ctx, fp, p.UserID); err != nil {
			e.logger.Error("step-up device revoke failed", "user_id", p.UserID, "error", err)
		}
	}
}
