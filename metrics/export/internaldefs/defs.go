package internaldefs

import (
	riskAuth "github.com/MrEthical07/riskAuth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   riskAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   riskAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: riskAuth.MetricLoginSuccess, Name: "riskauth_login_success_total", Help: "Logins that issued tokens."},
	{ID: riskAuth.MetricLoginFailure, Name: "riskauth_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: riskAuth.MetricLoginRateLimited, Name: "riskauth_login_rate_limited_total", Help: "Logins rejected by an admission policy."},
	{ID: riskAuth.MetricAccountLocked, Name: "riskauth_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: riskAuth.MetricHighRiskBlocked, Name: "riskauth_high_risk_blocked_total", Help: "Logins denied by the risk block tier."},
	{ID: riskAuth.MetricCaptchaChallenge, Name: "riskauth_captcha_challenge_total", Help: "Captcha challenges issued."},
	{ID: riskAuth.MetricCaptchaFailure, Name: "riskauth_captcha_failure_total", Help: "Captcha tokens rejected by the verifier."},
	{ID: riskAuth.MetricMFAChallenge, Name: "riskauth_mfa_challenge_total", Help: "Second-factor challenges issued."},
	{ID: riskAuth.MetricMFASuccess, Name: "riskauth_mfa_success_total", Help: "Second factors accepted."},
	{ID: riskAuth.MetricMFAFailure, Name: "riskauth_mfa_failure_total", Help: "Second factors rejected."},
	{ID: riskAuth.MetricBackupCodeUsed, Name: "riskauth_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: riskAuth.MetricOTPIssued, Name: "riskauth_otp_issued_total", Help: "One-time codes delivered."},
	{ID: riskAuth.MetricMFAEnrolled, Name: "riskauth_mfa_enrolled_total", Help: "Authenticator enrollments confirmed."},
	{ID: riskAuth.MetricRiskFactorNewDevice, Name: "riskauth_risk_factor_new_device_total", Help: "Assessments with the new device factor."},
	{ID: riskAuth.MetricRiskFactorMaliciousIP, Name: "riskauth_risk_factor_malicious_ip_total", Help: "Assessments with the malicious IP factor."},
	{ID: riskAuth.MetricRiskFactorImpossibleTravel, Name: "riskauth_risk_factor_impossible_travel_total", Help: "Assessments with the impossible travel factor."},
	{ID: riskAuth.MetricRiskFactorSuspiciousTiming, Name: "riskauth_risk_factor_suspicious_timing_total", Help: "Assessments with the suspicious timing factor."},
	{ID: riskAuth.MetricRiskFactorRepeatedFailures, Name: "riskauth_risk_factor_repeated_failures_total", Help: "Assessments with the repeated failures factor."},
	{ID: riskAuth.MetricDeviceTrusted, Name: "riskauth_device_trusted_total", Help: "Devices granted trust."},
	{ID: riskAuth.MetricSessionCreated, Name: "riskauth_session_created_total", Help: "Sessions created."},
	{ID: riskAuth.MetricRefreshSuccess, Name: "riskauth_refresh_success_total", Help: "Refresh tokens rotated."},
	{ID: riskAuth.MetricRefreshFailure, Name: "riskauth_refresh_failure_total", Help: "Refresh attempts rejected."},
	{ID: riskAuth.MetricRefreshReuseDetected, Name: "riskauth_refresh_reuse_detected_total", Help: "Rotated refresh tokens replayed."},
	{ID: riskAuth.MetricRefreshRateLimited, Name: "riskauth_refresh_rate_limited_total", Help: "Refresh attempts rejected by the admission policy."},
	{ID: riskAuth.MetricLogout, Name: "riskauth_logout_total", Help: "Single-session logouts."},
	{ID: riskAuth.MetricLogoutAll, Name: "riskauth_logout_all_total", Help: "Logout-all operations."},
	{ID: riskAuth.MetricCheckpointPassed, Name: "riskauth_checkpoint_passed_total", Help: "Checkpoints that kept the session."},
	{ID: riskAuth.MetricStepUpRequired, Name: "riskauth_step_up_required_total", Help: "Checkpoints that revoked the session."},
	{ID: riskAuth.MetricPermissionGranted, Name: "riskauth_permission_granted_total", Help: "Permission checks granted."},
	{ID: riskAuth.MetricPermissionDenied, Name: "riskauth_permission_denied_total", Help: "Permission checks denied."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: riskAuth.MetricAssessLatency, Name: "riskauth_assess_latency_seconds", Help: "Risk assessment latency."},
	{ID: riskAuth.MetricValidateLatency, Name: "riskauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// AuditDroppedName and AuditRetriedName are the dispatcher health counters.
const (
	AuditDroppedName = "riskauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped at enqueue."
	AuditRetriedName = "riskauth_audit_retried_total"
	AuditRetriedHelp = "Audit deliveries retried after a sink error."
)

// BucketCount matches the engine's histogram resolution.
const BucketCount = 8

// HistogramUpperBounds are the finite bucket bounds in seconds; the last
// engine bucket is +Inf.
var HistogramUpperBounds = [BucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket in instrument names.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
