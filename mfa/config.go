package mfa

import (
	"errors"
	"time"

	"github.com/MrEthical07/riskAuth/internal/rate"
)

// Config tunes the manager.
type Config struct {
	Issuer string

	OTPDigits int
	OTPTTL    time.Duration

	TOTPPeriod uint
	TOTPSkew   uint
	TOTPDigits int
	PendingTTL time.Duration

	BackupCodeCount  int
	BackupCodeLength int

	VerifyPolicy rate.Policy
	IssuePolicy  rate.Policy
}

// DefaultConfig returns 6-digit codes valid for five minutes, 30s TOTP with
// one step of skew and ten backup codes.
func DefaultConfig() Config {
	return Config{
		Issuer:           "riskAuth",
		OTPDigits:        6,
		OTPTTL:           300 * time.Second,
		TOTPPeriod:       30,
		TOTPSkew:         1,
		TOTPDigits:       6,
		PendingTTL:       15 * time.Minute,
		BackupCodeCount:  10,
		BackupCodeLength: 10,
		VerifyPolicy:     rate.Policy{Limit: 5, Window: 5 * time.Minute, Strategy: rate.SlidingWindow},
		IssuePolicy:      rate.Policy{Limit: 3, Window: 10 * time.Minute, Strategy: rate.FixedWindow},
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return errors.New("mfa issuer must be set")
	}
	if c.OTPDigits < 6 || c.OTPDigits > 10 {
		return errors.New("mfa otp digits must be between 6 and 10")
	}
	if c.OTPTTL <= 0 {
		return errors.New("mfa otp ttl must be > 0")
	}
	if c.TOTPPeriod == 0 {
		return errors.New("mfa totp period must be > 0")
	}
	if c.TOTPDigits != 6 && c.TOTPDigits != 8 {
		return errors.New("mfa totp digits must be 6 or 8")
	}
	if c.TOTPSkew > 2 {
		return errors.New("mfa totp skew must be <= 2")
	}
	if c.PendingTTL <= 0 {
		return errors.New("mfa pending enrollment ttl must be > 0")
	}
	if c.BackupCodeCount <= 0 || c.BackupCodeLength < 8 {
		return errors.New("mfa backup codes need count > 0 and length >= 8")
	}
	if err := c.VerifyPolicy.Validate(); err != nil {
		return errors.New("mfa verify policy is invalid")
	}
	if err := c.IssuePolicy.Validate(); err != nil {
		return errors.New("mfa issue policy is invalid")
	}
	return nil
}
