package riskAuth

import (
	"context"

	"github.com/MrEthical07/riskAuth/permission"
)

// CheckPermission reports whether subject may perform action on resource.
// Denial is the default and is audited; it is not an error. A policy store
// failure denies and returns ErrUnavailable.
func (e *Engine) CheckPermission(ctx context.Context, subject permission.Subject, resource, action string, attrs map[string]string) (bool, error) {
	if e == nil || e.authz == nil {
		return false, ErrEngineNotReady
	}

	decision, err := e.authz.Decide(ctx, subject, resource, action, permission.Context{
		Attributes: attrs,
		At:         e.now(),
	})
	if err != nil {
		e.logger.Error("policy store unavailable; denying", "user_id", subject.ID, "resource", resource, "action", action, "error", err)
		e.metricInc(MetricPermissionDenied)
		e.emitAudit(ctx, auditEventPermissionDenied, AuditSeverityWarning, false, subject.ID, "", ErrUnavailable, func() map[string]string {
			return map[string]string{"resource": resource, "action": action}
		})
		return false, ErrUnavailable
	}

	if !decision.Allowed {
		e.metricInc(MetricPermissionDenied)
		e.emitAudit(ctx, auditEventPermissionDenied, AuditSeverityWarning, false, subject.ID, "", ErrPermissionDenied, func() map[string]string {
			return map[string]string{"resource": resource, "action": action}
		})
		return false, nil
	}

	e.metricInc(MetricPermissionGranted)
	return true, nil
}

// SubjectFor builds an authorization subject for userID from the user store,
// carrying its roles and ABAC attributes.
func (e *Engine) SubjectFor(ctx context.Context, userID string) (permission.Subject, error) {
	if !e.ready() {
		return permission.Subject{}, ErrEngineNotReady
	}
	user, err := e.activeUser(ctx, userID)
	if err != nil {
		return permission.Subject{}, err
	}
	return permission.Subject{
		ID:         user.ID,
		Roles:      user.Roles,
		Attributes: user.Attributes,
	}, nil
}
