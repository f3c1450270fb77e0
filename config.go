package riskAuth

import (
	"errors"
	"time"

	"github.com/MrEthical07/riskAuth/geo"
	"github.com/MrEthical07/riskAuth/internal/rate"
	"github.com/MrEthical07/riskAuth/jwt"
	"github.com/MrEthical07/riskAuth/mfa"
	"github.com/MrEthical07/riskAuth/password"
	"github.com/MrEthical07/riskAuth/risk"
)

// Config holds every tunable of the Engine. Zero values are not defaults;
// start from [DefaultConfig] and override.
type Config struct {
	JWT        JWTConfig
	Session    SessionConfig
	Password   password.Config
	Risk       risk.Config
	Geo        GeoConfig
	MFA        mfa.Config
	Lockout    LockoutConfig
	Device     DeviceConfig
	RateLimits RateLimitConfig
	Captcha    CaptchaConfig
	Checkpoint CheckpointConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
TOKENS
====================================
*/

// JWTConfig controls access token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod jwt.SigningMethod // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	Leeway        time.Duration
}

// SessionConfig controls refresh sessions.
type SessionConfig struct {
	RedisPrefix string
	// RefreshTTL is the absolute lifetime of a session. Rotation does not extend it.
	RefreshTTL time.Duration
}

/*
====================================
RISK INPUTS
====================================
*/

// GeoConfig tunes the impossible-travel evaluator and the geo-IP cache.
type GeoConfig struct {
	MaxSpeedKmh float64
	Epsilon     time.Duration
	JitterKm    float64
	Cache       geo.CacheConfig
}

// LockoutConfig controls credential-failure lockout.
type LockoutConfig struct {
	Threshold     int
	Duration      time.Duration
	FailureWindow time.Duration
}

// DeviceConfig controls device trust.
type DeviceConfig struct {
	RedisPrefix string
	TrustTTL    time.Duration
	// TrustBelowScore grants trust to an untrusted device when the login
	// scored strictly below it, even without MFA.
	TrustBelowScore int
}

// RateLimitConfig holds the admission policies applied by the Engine.
type RateLimitConfig struct {
	LoginPerIP   rate.Policy
	LoginPerUser rate.Policy
	Refresh      rate.Policy
}

// CaptchaConfig controls captcha challenges.
type CaptchaConfig struct {
	// PassTTL is how long a solved captcha satisfies the requirement for
	// the same user and device while the remaining challenges are answered.
	PassTTL time.Duration
}

// CheckpointConfig controls continuous verification.
type CheckpointConfig struct {
	// StepUpAbove revokes the session when a checkpoint scores strictly above it.
	StepUpAbove int
}

/*
====================================
OBSERVABILITY
====================================
*/

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// RetryBackoff doubles after each failed delivery, up to MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// DrainAttempts bounds retries per event once Close has been called.
	DrainAttempts int
	// MaxAttempts bounds deliveries per event; a rejected event is then
	// logged in full and skipped.
	MaxAttempts int
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			SigningMethod: jwt.MethodEd25519,
			Issuer:        "riskauth",
		},
		Session: SessionConfig{
			RedisPrefix: "as",
			RefreshTTL:  7 * 24 * time.Hour,
		},
		Password: password.DefaultConfig(),
		Risk:     risk.DefaultConfig(),
		Geo: GeoConfig{
			MaxSpeedKmh: 500,
			Epsilon:     time.Minute,
			JitterKm:    50,
			Cache: geo.CacheConfig{
				Prefix:        "geo",
				TTL:           7 * 24 * time.Hour,
				Timeout:       800 * time.Millisecond,
				RatePerSecond: 40,
				Burst:         10,
			},
		},
		MFA: mfa.DefaultConfig(),
		Lockout: LockoutConfig{
			Threshold:     5,
			Duration:      30 * time.Minute,
			FailureWindow: 24 * time.Hour,
		},
		Device: DeviceConfig{
			RedisPrefix:     "dt",
			TrustTTL:        30 * 24 * time.Hour,
			TrustBelowScore: 30,
		},
		RateLimits: RateLimitConfig{
			LoginPerIP:   rate.Policy{Limit: 30, Window: time.Minute, Strategy: rate.SlidingWindow},
			LoginPerUser: rate.Policy{Limit: 10, Window: 15 * time.Minute, Strategy: rate.FixedWindow},
			Refresh:      rate.Policy{Limit: 20, Window: time.Minute, Strategy: rate.TokenBucket},
		},
		Captcha: CaptchaConfig{
			PassTTL: 5 * time.Minute,
		},
		Checkpoint: CheckpointConfig{
			StepUpAbove: 60,
		},
		Audit: AuditConfig{
			Enabled:       true,
			BufferSize:    1024,
			DropIfFull:    false,
			RetryBackoff:  100 * time.Millisecond,
			MaxBackoff:    5 * time.Second,
			DrainAttempts: 5,
			MaxAttempts:   12,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > time.Minute {
		return errors.New("JWT Leeway must be between 0 and 1m")
	}

	// Session
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Session RefreshTTL must be > JWT AccessTTL")
	}

	// Risk
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if c.Geo.MaxSpeedKmh <= 0 {
		return errors.New("Geo MaxSpeedKmh must be > 0")
	}
	if c.Geo.Epsilon <= 0 {
		return errors.New("Geo Epsilon must be > 0")
	}
	if c.Geo.JitterKm < 0 {
		return errors.New("Geo JitterKm must be >= 0")
	}
	if c.Geo.Cache.RatePerSecond < 0 {
		return errors.New("Geo Cache RatePerSecond must be >= 0")
	}

	// MFA
	if err := c.MFA.Validate(); err != nil {
		return err
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.FailureWindow < c.Lockout.Duration {
		return errors.New("Lockout FailureWindow must be >= Duration")
	}

	// Device
	if c.Device.TrustTTL <= 0 {
		return errors.New("Device TrustTTL must be > 0")
	}
	if c.Device.TrustBelowScore < risk.MinScore || c.Device.TrustBelowScore > risk.MaxScore {
		return errors.New("Device TrustBelowScore must be within 0..100")
	}

	// Rate limits
	for name, p := range map[string]rate.Policy{
		"LoginPerIP":   c.RateLimits.LoginPerIP,
		"LoginPerUser": c.RateLimits.LoginPerUser,
		"Refresh":      c.RateLimits.Refresh,
	} {
		if err := p.Validate(); err != nil {
			return errors.New("RateLimits " + name + " is invalid")
		}
	}

	if c.Captcha.PassTTL <= 0 {
		return errors.New("Captcha PassTTL must be > 0")
	}
	if c.Checkpoint.StepUpAbove < risk.MinScore || c.Checkpoint.StepUpAbove >= risk.MaxScore {
		return errors.New("Checkpoint StepUpAbove must be within 0..99")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0")
		}
		if c.Audit.RetryBackoff <= 0 || c.Audit.MaxBackoff < c.Audit.RetryBackoff {
			return errors.New("Audit RetryBackoff must be > 0 and <= MaxBackoff")
		}
		if c.Audit.DrainAttempts <= 0 {
			return errors.New("Audit DrainAttempts must be > 0")
		}
		if c.Audit.MaxAttempts <= 0 {
			return errors.New("Audit MaxAttempts must be > 0")
		}
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Enabled")
	}

	return nil
}
