package mfa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/riskAuth/internal"
	"github.com/MrEthical07/riskAuth/internal/rate"
	"github.com/MrEthical07/riskAuth/internal/stores"
)

// Method names the proof that satisfied a verification.
type Method string

const (
	MethodOTP        Method = "otp"
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup_code"
)

// BackupCodeStore persists hashed backup codes. ConsumeBackupCode must remove
// the hash atomically and report whether it was present.
type BackupCodeStore interface {
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error
	ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error)
}

// Enrollment is returned once by SetupTOTP. BackupCodes are shown to the user
// and never stored in clear.
type Enrollment struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// Manager issues and verifies second factors.
type Manager struct {
	cfg       Config
	limiter   *rate.Limiter
	otps      *stores.OTPChallengeStore
	totps     *stores.TOTPStore
	codes     BackupCodeStore
	deliverer Deliverer
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithDeliverer sets the OTP dispatch channel.
func WithDeliverer(d Deliverer) Option { return func(m *Manager) { m.deliverer = d } }

// WithBackupCodes sets the backup code store. Without one backup codes are disabled.
func WithBackupCodes(s BackupCodeStore) Option { return func(m *Manager) { m.codes = s } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithClock sets the time source for code expiry and TOTP steps.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager validates cfg and wires the Redis-backed stores.
func NewManager(redisClient redis.UniversalClient, limiter *rate.Limiter, cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if redisClient == nil || limiter == nil {
		return nil, errors.New("mfa manager requires redis and a rate limiter")
	}

	m := &Manager{cfg: cfg, limiter: limiter}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.otps = stores.NewOTPChallengeStore(redisClient, "otp", m.now)
	m.totps = stores.NewTOTPStore(redisClient, "mfa")
	return m, nil
}

// SetupTOTP generates a secret and a fresh set of backup codes. Both stay
// pending until ConfirmTOTP; the user's current codes keep working until then.
func (m *Manager) SetupTOTP(ctx context.Context, userID, accountName string) (*Enrollment, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if accountName == "" {
		accountName = userID
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: accountName,
		Period:      m.cfg.TOTPPeriod,
		Digits:      otp.Digits(m.cfg.TOTPDigits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	enrollment := &Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
	}
	pending := stores.PendingEnrollment{Secret: key.Secret()}

	if m.codes != nil {
		enrollment.BackupCodes = make([]string, 0, m.cfg.BackupCodeCount)
		pending.BackupHashes = make([]string, 0, m.cfg.BackupCodeCount)
		for i := 0; i < m.cfg.BackupCodeCount; i++ {
			code, err := internal.NewBackupCode(m.cfg.BackupCodeLength)
			if err != nil {
				return nil, err
			}
			enrollment.BackupCodes = append(enrollment.BackupCodes, internal.FormatBackupCode(code))
			pending.BackupHashes = append(pending.BackupHashes, internal.HashUserSecret(userID, code))
		}
	}

	if err := m.totps.SavePending(ctx, userID, pending, m.cfg.PendingTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return enrollment, nil
}

// HasPendingEnrollment reports whether SetupTOTP is awaiting confirmation.
func (m *Manager) HasPendingEnrollment(ctx context.Context, userID string) (bool, error) {
	_, err := m.totps.Pending(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, stores.ErrEnrollmentNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// ConfirmTOTP checks code against the pending secret and, on success,
// removes the pending entry, installs its backup codes and returns the secret
// for the caller to persist. Of two concurrent confirmations at most one wins.
func (m *Manager) ConfirmTOTP(ctx context.Context, userID, code string) (string, error) {
	if err := m.throttle(ctx, "mfa:verify:"+userID, m.cfg.VerifyPolicy); err != nil {
		return "", err
	}
	return m.confirm(ctx, userID, code)
}

func (m *Manager) confirm(ctx context.Context, userID, code string) (string, error) {
	pending, err := m.totps.Pending(ctx, userID)
	if err != nil {
		if errors.Is(err, stores.ErrEnrollmentNotFound) {
			return "", ErrNoPendingEnrollment
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ok, err := m.verifyTOTP(ctx, userID, pending.Secret, code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidCode
	}

	cleared, err := m.totps.ClearPending(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !cleared {
		return "", ErrNoPendingEnrollment
	}

	if m.codes != nil && len(pending.BackupHashes) > 0 {
		if err := m.codes.ReplaceBackupCodes(ctx, userID, pending.BackupHashes); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return pending.Secret, nil
}

// IssueOTP generates a code, stores its hash for OTPTTL (replacing any
// outstanding code) and hands it to the Deliverer.
func (m *Manager) IssueOTP(ctx context.Context, userID, channel, destination string) (time.Time, error) {
	if userID == "" || destination == "" {
		return time.Time{}, ErrInvalidInput
	}
	if m.deliverer == nil {
		return time.Time{}, ErrNoDeliverer
	}
	if err := m.throttle(ctx, "mfa:issue:"+userID, m.cfg.IssuePolicy); err != nil {
		return time.Time{}, err
	}

	code, err := internal.NewOTP(m.cfg.OTPDigits)
	if err != nil {
		return time.Time{}, err
	}

	challenge, err := m.otps.Save(ctx, userID, internal.HashUserSecret(userID, code), channel, m.cfg.OTPTTL)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := m.deliverer.Deliver(ctx, Message{
		UserID:      userID,
		Channel:     channel,
		Destination: destination,
		Code:        code,
		ExpiresAt:   challenge.ExpiresAt,
	}); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return challenge.ExpiresAt, nil
}

// HasOutstandingOTP reports whether an unexpired code exists for userID.
func (m *Manager) HasOutstandingOTP(ctx context.Context, userID string) (bool, error) {
	_, err := m.otps.Get(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, stores.ErrChallengeNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// VerifyOTP consumes the outstanding code when it matches. A mismatch leaves
// the code in place until it expires.
func (m *Manager) VerifyOTP(ctx context.Context, userID, code string) (bool, error) {
	if err := m.throttle(ctx, "mfa:verify:"+userID, m.cfg.VerifyPolicy); err != nil {
		return false, err
	}
	return m.verifyOTP(ctx, userID, code)
}

func (m *Manager) verifyOTP(ctx context.Context, userID, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if len(code) != m.cfg.OTPDigits {
		return false, nil
	}
	res, err := m.otps.Consume(ctx, userID, internal.HashUserSecret(userID, code))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res == stores.ConsumeOK, nil
}

// VerifyTOTP validates code against secret within TOTPSkew steps and claims
// the matched step so the same code cannot be replayed.
func (m *Manager) VerifyTOTP(ctx context.Context, userID, secret, code string) (bool, error) {
	if err := m.throttle(ctx, "mfa:verify:"+userID, m.cfg.VerifyPolicy); err != nil {
		return false, err
	}
	return m.verifyTOTP(ctx, userID, secret, code)
}

func (m *Manager) verifyTOTP(ctx context.Context, userID, secret, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != m.cfg.TOTPDigits {
		return false, nil
	}

	period := int64(m.cfg.TOTPPeriod)
	current := m.now().Unix() / period
	skew := int64(m.cfg.TOTPSkew)
	opts := totp.ValidateOpts{
		Period:    m.cfg.TOTPPeriod,
		Skew:      0,
		Digits:    otp.Digits(m.cfg.TOTPDigits),
		Algorithm: otp.AlgorithmSHA1,
	}

	for step := current - skew; step <= current+skew; step++ {
		if step < 0 {
			continue
		}
		ok, err := totp.ValidateCustom(code, secret, time.Unix(step*period, 0).UTC(), opts)
		if err != nil || !ok {
			continue
		}
		ttl := time.Duration(period*(2*skew+2)) * time.Second
		fresh, err := m.totps.MarkStepUsed(ctx, userID, step, ttl)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fresh, nil
	}
	return false, nil
}

// ConsumeBackupCode removes code from the user's set when present.
func (m *Manager) ConsumeBackupCode(ctx context.Context, userID, code string) (bool, error) {
	if err := m.throttle(ctx, "mfa:verify:"+userID, m.cfg.VerifyPolicy); err != nil {
		return false, err
	}
	return m.consumeBackupCode(ctx, userID, code)
}

func (m *Manager) consumeBackupCode(ctx context.Context, userID, code string) (bool, error) {
	if m.codes == nil {
		return false, nil
	}
	canonical := internal.CanonicalizeBackupCode(code)
	if len(canonical) != m.cfg.BackupCodeLength {
		return false, nil
	}
	ok, err := m.codes.ConsumeBackupCode(ctx, userID, internal.HashUserSecret(userID, canonical))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// VerifyRequest describes the proofs a caller may satisfy.
type VerifyRequest struct {
	UserID      string
	Code        string
	TOTPSecret  string // empty when the user has no TOTP enrollment
	AllowBackup bool
}

// Verify spends one verify attempt and tries, in order, the outstanding OTP,
// the TOTP secret and, when allowed, a backup code. It returns the method
// that matched or false.
func (m *Manager) Verify(ctx context.Context, req VerifyRequest) (Method, bool, error) {
	if req.UserID == "" {
		return "", false, ErrInvalidInput
	}
	if err := m.throttle(ctx, "mfa:verify:"+req.UserID, m.cfg.VerifyPolicy); err != nil {
		return "", false, err
	}
	return m.check(ctx, req)
}

// VerifyDuringEnrollment spends one verify attempt for a user who already has
// a factor while a new TOTP enrollment is pending. A code for the pending
// secret confirms it like ConfirmTOTP and returns the new secret; any other
// code is checked like Verify.
func (m *Manager) VerifyDuringEnrollment(ctx context.Context, req VerifyRequest) (Method, string, bool, error) {
	if req.UserID == "" {
		return "", "", false, ErrInvalidInput
	}
	if err := m.throttle(ctx, "mfa:verify:"+req.UserID, m.cfg.VerifyPolicy); err != nil {
		return "", "", false, err
	}

	secret, err := m.confirm(ctx, req.UserID, req.Code)
	switch {
	case err == nil:
		return MethodTOTP, secret, true, nil
	case !errors.Is(err, ErrInvalidCode) && !errors.Is(err, ErrNoPendingEnrollment):
		return "", "", false, err
	}

	method, ok, err := m.check(ctx, req)
	return method, "", ok, err
}

func (m *Manager) check(ctx context.Context, req VerifyRequest) (Method, bool, error) {
	if ok, err := m.verifyOTP(ctx, req.UserID, req.Code); err != nil || ok {
		return MethodOTP, ok, err
	}
	if req.TOTPSecret != "" {
		if ok, err := m.verifyTOTP(ctx, req.UserID, req.TOTPSecret, req.Code); err != nil || ok {
			return MethodTOTP, ok, err
		}
	}
	if req.AllowBackup {
		if ok, err := m.consumeBackupCode(ctx, req.UserID, req.Code); err != nil || ok {
			return MethodBackupCode, ok, err
		}
	}
	return "", false, nil
}

func (m *Manager) throttle(ctx context.Context, key string, p rate.Policy) error {
	err := m.limiter.Check(ctx, key, p)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
