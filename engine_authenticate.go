package riskAuth

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/riskAuth/internal"
	"github.com/MrEthical07/riskAuth/internal/rate"
	"github.com/MrEthical07/riskAuth/jwt"
	"github.com/MrEthical07/riskAuth/mfa"
	"github.com/MrEthical07/riskAuth/risk"
	"github.com/MrEthical07/riskAuth/session"
)

const passCaptcha = "captcha"

// preferredChannels orders OTP channels when a user has several.
var preferredChannels = []string{"sms", "email"}

// Authenticate runs one login attempt through admission, credential, lock,
// risk and challenge checks. A nil error with Status ChallengeRequired means
// the caller must resubmit the same credentials together with the listed
// proofs; [AuthResult.Err] classifies that outcome.
func (e *Engine) Authenticate(ctx context.Context, req AuthenticateRequest) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	ip := ClientIPFromContext(ctx)

	// -------- ADMISSION --------
	if ip != "" {
		if err := e.throttle(ctx, "login:ip:"+ip, e.config.RateLimits.LoginPerIP); err != nil {
			return nil, e.loginThrottled(ctx, "login_ip", err)
		}
	}
	if err := e.throttle(ctx, "login:user:"+strings.ToLower(username), e.config.RateLimits.LoginPerUser); err != nil {
		return nil, e.loginThrottled(ctx, "login_user", err)
	}

	// -------- USER --------
	user, err := e.users.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		e.logger.Error("user lookup failed", "error", err)
		return nil, ErrUnavailable
	}
	if user == nil || !user.Active {
		e.passwords.DummyVerify(req.Password)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, AuditSeverityWarning, false, "", "", ErrUserNotFound, func() map[string]string {
			return map[string]string{"username": username}
		})
		return nil, ErrInvalidCredentials
	}

	// -------- LOCK --------
	state, err := e.lockout.State(ctx, user.ID)
	if err != nil {
		e.logger.Error("lockout state unavailable", "user_id", user.ID, "error", err)
		return nil, ErrUnavailable
	}
	if state.Locked(e.now()) {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, AuditSeverityWarning, false, user.ID, "", ErrAccountLocked, func() map[string]string {
			return map[string]string{"locked_until": state.LockedUntil.Format(time.RFC3339)}
		})
		return nil, ErrAccountLocked
	}

	// -------- CREDENTIALS --------
	ok, err := e.passwords.Verify(req.Password, user.CredentialHash)
	if err != nil {
		e.logger.Error("stored credential hash is malformed", "user_id", user.ID, "error", err)
	}
	if !ok {
		e.recordCredentialFailure(ctx, user)
		return nil, ErrInvalidCredentials
	}

	// -------- RISK --------
	assessment := e.assess(ctx, risk.Subject{
		ID:             user.ID,
		FailedAttempts: state.FailedAttempts,
		LastLoginAt:    user.LastLoginAt,
		LastKnownGeo:   user.LastKnownGeo,
	})
	reqs := assessment.Requirements
	result := &AuthResult{UserID: user.ID, Assessment: assessment}

	if reqs.Block {
		e.metricInc(MetricHighRiskBlocked)
		e.logger.Error("high risk login blocked",
			"user_id", user.ID,
			"ip", ip,
			"score", assessment.Score,
			"factors", strings.Join(assessment.FactorNames(), ","),
		)
		e.emitAudit(ctx, auditEventHighRiskBlocked, AuditSeverityCritical, false, user.ID, "", ErrHighRiskBlocked, func() map[string]string {
			return assessmentMetadata(assessment)
		})
		return nil, ErrHighRiskBlocked
	}

	mfaNeeded := reqs.MFA || reqs.Additional

	// -------- CAPTCHA --------
	fp := assessment.Fingerprint
	if reqs.Captcha {
		passed, err := e.passes.Has(ctx, passCaptcha, user.ID, fp)
		if err != nil {
			e.logger.Error("captcha pass lookup failed", "user_id", user.ID, "error", err)
			return nil, ErrUnavailable
		}
		if !passed {
			if req.CaptchaToken == "" {
				result.Status = StatusChallengeRequired
				result.Challenges = []Challenge{ChallengeCaptcha}
				if mfaNeeded && req.MFAToken == "" {
					result.Challenges = append(result.Challenges, ChallengeMFA)
				}
				e.metricInc(MetricCaptchaChallenge)
				e.emitChallenge(ctx, result)
				return result, nil
			}
			if err := e.verifyCaptcha(ctx, user.ID, req.CaptchaToken, ip); err != nil {
				return nil, err
			}
			if err := e.passes.Mark(ctx, passCaptcha, user.ID, fp, e.config.Captcha.PassTTL); err != nil {
				e.logger.Warn("captcha pass not recorded", "user_id", user.ID, "error", err)
			}
		}
	}

	// -------- MFA --------
	var method mfa.Method
	if mfaNeeded {
		if req.MFAToken == "" {
			return e.challengeMFA(ctx, user, result)
		}
		m, ok, err := e.mfa.Verify(ctx, mfa.VerifyRequest{
			UserID:      user.ID,
			Code:        req.MFAToken,
			TOTPSecret:  user.MFASecret,
			AllowBackup: !reqs.Additional,
		})
		if err != nil {
			return nil, e.mfaFailure(ctx, user.ID, err)
		}
		if !ok {
			return nil, e.mfaFailure(ctx, user.ID, ErrInvalidMFAToken)
		}
		method = m
		e.metricInc(MetricMFASuccess)
		if method == mfa.MethodBackupCode {
			e.metricInc(MetricBackupCodeUsed)
		}
		e.emitAudit(ctx, auditEventMFASuccess, AuditSeverityInfo, true, user.ID, "", nil, func() map[string]string {
			return map[string]string{"method": string(method)}
		})
	}

	// -------- AUTHENTICATED --------
	e.completeLogin(ctx, user, assessment, ip)

	amr := []string{"pwd"}
	if method != "" {
		amr = append(amr, string(method))
	}
	tokens, err := e.issueTokens(ctx, user.ID, user.Roles, fp, method != "", amr)
	if err != nil {
		return nil, err
	}

	if !assessment.DeviceTrusted && (assessment.Score < e.config.Device.TrustBelowScore || method != "") {
		e.trustDevice(ctx, user.ID, fp, assessment.Score, method)
	}

	result.Status = StatusAuthenticated
	result.Tokens = tokens
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, AuditSeverityInfo, true, user.ID, tokens.SessionID, nil, func() map[string]string {
		md := assessmentMetadata(assessment)
		md["amr"] = strings.Join(amr, ",")
		return md
	})
	return result, nil
}

func (e *Engine) throttle(ctx context.Context, key string, p rate.Policy) error {
	err := e.limiter.Check(ctx, key, p)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRateLimited
	default:
		e.logger.Error("rate limiter unavailable", "key", key, "error", err)
		return ErrUnavailable
	}
}

func (e *Engine) loginThrottled(ctx context.Context, scope string, err error) error {
	if errors.Is(err, ErrRateLimited) {
		e.metricInc(MetricLoginRateLimited)
		e.emitRateLimit(ctx, scope, "")
	}
	return err
}

// recordCredentialFailure bumps the Redis lockout counter and mirrors it to
// the user store. Neither failure changes the caller's answer.
func (e *Engine) recordCredentialFailure(ctx context.Context, user *UserIdentity) {
	e.metricInc(MetricLoginFailure)

	state, err := e.lockout.RecordFailure(ctx, user.ID)
	if err != nil {
		e.logger.Error("lockout counter not updated", "user_id", user.ID, "error", err)
	} else if mirrorErr := e.users.RecordFailedLogin(ctx, user.ID, state.FailedAttempts, state.LockedUntil); mirrorErr != nil {
		e.logger.Warn("failed login not mirrored to user store", "user_id", user.ID, "error", mirrorErr)
	}

	e.emitAudit(ctx, auditEventLoginFailure, AuditSeverityWarning, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"failed_attempts": strconv.Itoa(state.FailedAttempts)}
	})

	if err == nil && state.Locked(e.now()) && state.FailedAttempts == e.config.Lockout.Threshold {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, AuditSeverityCritical, false, user.ID, "", ErrAccountLocked, func() map[string]string {
			return map[string]string{"locked_until": state.LockedUntil.Format(time.RFC3339)}
		})
	}
}

func (e *Engine) verifyCaptcha(ctx context.Context, userID, token, ip string) error {
	if e.captcha == nil {
		e.logger.Error("captcha required but no verifier configured", "user_id", userID)
		return ErrUnavailable
	}
	ok, err := e.captcha.Verify(ctx, token, ip)
	if err != nil {
		e.logger.Error("captcha verification failed", "user_id", userID, "error", err)
		return ErrUnavailable
	}
	if !ok {
		e.metricInc(MetricCaptchaFailure)
		e.emitAudit(ctx, auditEventCaptchaFailure, AuditSeverityWarning, false, userID, "", ErrInvalidCaptcha, nil)
		return ErrInvalidCaptcha
	}
	return nil
}

// challengeMFA asks for a second factor. Users with TOTP enter an
// authenticator code; otherwise an OTP is sent over the preferred channel.
func (e *Engine) challengeMFA(ctx context.Context, user *UserIdentity, result *AuthResult) (*AuthResult, error) {
	result.Status = StatusChallengeRequired
	result.Challenges = []Challenge{ChallengeMFA}

	if user.MFAEnabled && user.MFASecret != "" {
		result.MFAMethod = string(mfa.MethodTOTP)
		e.metricInc(MetricMFAChallenge)
		e.emitChallenge(ctx, result)
		return result, nil
	}

	channel, destination := preferredChannel(user.ContactChannels)
	if channel == "" {
		e.emitAudit(ctx, auditEventMFAFailure, AuditSeverityWarning, false, user.ID, "", ErrMFANotEnrolled, nil)
		return nil, ErrMFANotEnrolled
	}

	expiresAt, err := e.mfa.IssueOTP(ctx, user.ID, channel, destination)
	if err != nil {
		if !errors.Is(err, mfa.ErrRateLimited) {
			e.logger.Error("otp issue failed", "user_id", user.ID, "channel", channel, "error", err)
			return nil, ErrUnavailable
		}
		// Issue budget spent; a still-valid code keeps the challenge answerable.
		outstanding, lookupErr := e.mfa.HasOutstandingOTP(ctx, user.ID)
		if lookupErr != nil || !outstanding {
			e.emitRateLimit(ctx, "otp_issue", user.ID)
			return nil, ErrRateLimited
		}
	} else {
		e.metricInc(MetricOTPIssued)
		result.MFAExpiresAt = expiresAt
		e.emitAudit(ctx, auditEventOTPIssued, AuditSeverityInfo, true, user.ID, "", nil, func() map[string]string {
			return map[string]string{"channel": channel}
		})
	}

	result.MFAMethod = channel
	e.metricInc(MetricMFAChallenge)
	e.emitChallenge(ctx, result)
	return result, nil
}

func (e *Engine) emitChallenge(ctx context.Context, result *AuthResult) {
	e.emitAudit(ctx, auditEventChallengeIssued, AuditSeverityInfo, false, result.UserID, "", result.Err(), func() map[string]string {
		md := assessmentMetadata(result.Assessment)
		challenges := make([]string, 0, len(result.Challenges))
		for _, c := range result.Challenges {
			challenges = append(challenges, string(c))
		}
		md["challenges"] = strings.Join(challenges, ",")
		return md
	})
}

// mfaFailure records a failed second factor. It never touches the
// credential lockout counter.
func (e *Engine) mfaFailure(ctx context.Context, userID string, err error) error {
	switch {
	case errors.Is(err, mfa.ErrRateLimited):
		e.emitRateLimit(ctx, "mfa_verify", userID)
		return ErrRateLimited
	case errors.Is(err, ErrInvalidMFAToken):
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, AuditSeverityWarning, false, userID, "", ErrInvalidMFAToken, nil)
		return ErrInvalidMFAToken
	default:
		e.logger.Error("mfa verification unavailable", "user_id", userID, "error", err)
		return ErrUnavailable
	}
}

// completeLogin resets the failure streak and records the login. The user
// store writes are mirrors and only logged on failure.
func (e *Engine) completeLogin(ctx context.Context, user *UserIdentity, a risk.Assessment, ip string) {
	if err := e.lockout.Reset(ctx, user.ID); err != nil {
		e.logger.Warn("lockout reset failed", "user_id", user.ID, "error", err)
	}
	if err := e.passes.Clear(ctx, passCaptcha, user.ID, a.Fingerprint); err != nil {
		e.logger.Warn("captcha pass not cleared", "user_id", user.ID, "error", err)
	}

	rec := LoginRecord{At: e.now(), IP: ip, Geo: a.Location}
	if rec.Geo == nil {
		rec.Geo = user.LastKnownGeo
	}
	if err := e.users.RecordSuccessfulLogin(ctx, user.ID, rec); err != nil {
		e.logger.Warn("successful login not mirrored to user store", "user_id", user.ID, "error", err)
	}
}

func (e *Engine) issueTokens(ctx context.Context, userID string, roles []string, fingerprint string, mfaDone bool, amr []string) (*TokenPair, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, ErrUnavailable
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, ErrUnavailable
	}

	now := e.now()
	sess := &session.Session{
		SessionID:   sid.String(),
		UserID:      userID,
		Roles:       roles,
		Fingerprint: fingerprint,
		MFA:         mfaDone,
		RefreshHash: internal.HashRefreshSecret(secret),
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.config.Session.RefreshTTL),
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		e.logger.Error("session not persisted", "user_id", userID, "error", err)
		return nil, ErrUnavailable
	}

	refresh, err := internal.EncodeRefreshToken(sess.SessionID, secret)
	if err != nil {
		return nil, ErrUnavailable
	}
	access, accessExp, err := e.jwt.CreateAccess(jwt.AccessInput{
		UserID:    userID,
		SessionID: sess.SessionID,
		Roles:     roles,
		AMR:       amr,
	})
	if err != nil {
		e.logger.Error("access token not signed", "user_id", userID, "error", err)
		return nil, ErrUnavailable
	}

	e.metricInc(MetricSessionCreated)
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        sess.SessionID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

func (e *Engine) trustDevice(ctx context.Context, userID, fingerprint string, score int, method mfa.Method) {
	if err := e.devices.Trust(ctx, fingerprint, userID, e.config.Device.TrustTTL); err != nil {
		e.logger.Warn("device trust not recorded", "user_id", userID, "error", err)
		return
	}
	e.metricInc(MetricDeviceTrusted)
	e.emitAudit(ctx, auditEventDeviceTrusted, AuditSeverityInfo, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"score":  strconv.Itoa(score),
			"method": string(method),
		}
	})
}

// preferredChannel picks sms, then email, then any other configured channel
// in name order.
func preferredChannel(channels map[string]string) (string, string) {
	for _, c := range preferredChannels {
		if dest := strings.TrimSpace(channels[c]); dest != "" {
			return c, dest
		}
	}
	rest := make([]string, 0, len(channels))
	for c, dest := range channels {
		if strings.TrimSpace(dest) != "" {
			rest = append(rest, c)
		}
	}
	if len(rest) == 0 {
		return "", ""
	}
	sort.Strings(rest)
	return rest[0], strings.TrimSpace(channels[rest[0]])
}
