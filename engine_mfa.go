package riskAuth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/riskAuth/mfa"
)

// SetupMFA starts a TOTP enrollment for userID. The secret and the new backup
// codes stay pending until confirmed through [Engine.VerifyMFA]; the codes are
// only ever returned here.
func (e *Engine) SetupMFA(ctx context.Context, userID string) (*MFAEnrollment, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	user, err := e.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	enrollment, err := e.mfa.SetupTOTP(ctx, user.ID, user.Username)
	if err != nil {
		e.logger.Error("totp setup failed", "user_id", user.ID, "error", err)
		return nil, Classify(err)
	}

	e.emitAudit(ctx, auditEventMFASetupRequested, AuditSeverityInfo, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"backup_codes": strconv.Itoa(len(enrollment.BackupCodes))}
	})
	return enrollment, nil
}

// VerifyMFA confirms a pending TOTP enrollment when code matches it. Otherwise
// it checks code against the outstanding OTP, the enrolled TOTP secret and the
// backup codes, consuming whichever matched. A user without an enrolled factor
// can only confirm.
func (e *Engine) VerifyMFA(ctx context.Context, userID, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidMFAToken
	}
	user, err := e.activeUser(ctx, userID)
	if err != nil {
		return err
	}

	pending, err := e.mfa.HasPendingEnrollment(ctx, user.ID)
	if err != nil {
		e.logger.Error("pending enrollment lookup failed", "user_id", user.ID, "error", err)
		return ErrUnavailable
	}
	if pending && !user.MFAEnabled {
		return e.confirmEnrollment(ctx, user.ID, code)
	}

	req := mfa.VerifyRequest{
		UserID:      user.ID,
		Code:        code,
		TOTPSecret:  user.MFASecret,
		AllowBackup: true,
	}
	var (
		method mfa.Method
		secret string
		ok     bool
	)
	if pending {
		method, secret, ok, err = e.mfa.VerifyDuringEnrollment(ctx, req)
	} else {
		method, ok, err = e.mfa.Verify(ctx, req)
	}
	if err != nil {
		return e.mfaFailure(ctx, user.ID, err)
	}
	if !ok {
		return e.mfaFailure(ctx, user.ID, ErrInvalidMFAToken)
	}
	if secret != "" {
		return e.finishEnrollment(ctx, user.ID, secret)
	}

	e.metricInc(MetricMFASuccess)
	if method == mfa.MethodBackupCode {
		e.metricInc(MetricBackupCodeUsed)
	}
	e.emitAudit(ctx, auditEventMFASuccess, AuditSeverityInfo, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"method": string(method)}
	})
	return nil
}

func (e *Engine) confirmEnrollment(ctx context.Context, userID, code string) error {
	secret, err := e.mfa.ConfirmTOTP(ctx, userID, code)
	if err != nil {
		switch {
		case errors.Is(err, mfa.ErrInvalidCode):
			return e.mfaFailure(ctx, userID, ErrInvalidMFAToken)
		case errors.Is(err, mfa.ErrNoPendingEnrollment):
			// lost a race with a concurrent confirmation
			return ErrMFANotEnrolled
		default:
			return e.mfaFailure(ctx, userID, err)
		}
	}
	return e.finishEnrollment(ctx, userID, secret)
}

// finishEnrollment persists a confirmed secret.
func (e *Engine) finishEnrollment(ctx context.Context, userID, secret string) error {
	if err := e.users.SaveMFASecret(ctx, userID, secret); err != nil {
		e.logger.Error("totp secret not persisted", "user_id", userID, "error", err)
		return ErrUnavailable
	}

	e.metricInc(MetricMFAEnrolled)
	e.emitAudit(ctx, auditEventMFAEnrolled, AuditSeverityInfo, true, userID, "", nil, func() map[string]string {
		return map[string]string{"method": string(mfa.MethodTOTP)}
	})
	return nil
}

// IssueMFAChallenge sends a fresh OTP to the user's destination for channel
// and returns its expiry. Any outstanding code is replaced.
func (e *Engine) IssueMFAChallenge(ctx context.Context, userID, channel string) (time.Time, error) {
	if !e.ready() {
		return time.Time{}, ErrEngineNotReady
	}
	user, err := e.activeUser(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}

	if channel == "" {
		channel, _ = preferredChannel(user.ContactChannels)
	}
	destination := strings.TrimSpace(user.ContactChannels[channel])
	if destination == "" {
		return time.Time{}, ErrMFANotEnrolled
	}

	expiresAt, err := e.mfa.IssueOTP(ctx, user.ID, channel, destination)
	if err != nil {
		if errors.Is(err, mfa.ErrRateLimited) {
			e.emitRateLimit(ctx, "otp_issue", user.ID)
			return time.Time{}, ErrRateLimited
		}
		e.logger.Error("otp issue failed", "user_id", user.ID, "channel", channel, "error", err)
		return time.Time{}, ErrUnavailable
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssued, AuditSeverityInfo, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"channel": channel}
	})
	return expiresAt, nil
}

// UnlockAccount clears the lockout state of userID, typically after an
// operator has confirmed the account owner.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrInvalidCredentials
	}

	if err := e.lockout.Reset(ctx, userID); err != nil {
		e.logger.Error("lockout reset failed", "user_id", userID, "error", err)
		return ErrUnavailable
	}
	if err := e.users.RecordFailedLogin(ctx, userID, 0, time.Time{}); err != nil {
		e.logger.Warn("unlock not mirrored to user store", "user_id", userID, "error", err)
	}

	e.emitAudit(ctx, auditEventAccountUnlocked, AuditSeverityInfo, true, userID, "", nil, nil)
	return nil
}

// activeUser loads userID for flows that run after authentication.
func (e *Engine) activeUser(ctx context.Context, userID string) (*UserIdentity, error) {
	if userID == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := e.users.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return nil, ErrInvalidCredentials
	case err != nil:
		e.logger.Error("user lookup failed", "user_id", userID, "error", err)
		return nil, ErrUnavailable
	case user == nil || !user.Active:
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
