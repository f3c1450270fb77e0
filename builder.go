package riskAuth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/riskAuth/device"
	"github.com/MrEthical07/riskAuth/geo"
	internalaudit "github.com/MrEthical07/riskAuth/internal/audit"
	"github.com/MrEthical07/riskAuth/internal/limiters"
	"github.com/MrEthical07/riskAuth/internal/rate"
	"github.com/MrEthical07/riskAuth/internal/stores"
	"github.com/MrEthical07/riskAuth/jwt"
	"github.com/MrEthical07/riskAuth/mfa"
	"github.com/MrEthical07/riskAuth/password"
	"github.com/MrEthical07/riskAuth/permission"
	"github.com/MrEthical07/riskAuth/risk"
	"github.com/MrEthical07/riskAuth/session"
)

// Builder assembles an [Engine]. It is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users       UserStore
	locator     geo.Locator
	intel       risk.ThreatIntel
	deliverer   mfa.Deliverer
	captcha     CaptchaVerifier
	policyStore permission.PolicyStore
	auditSink   AuditSink
	logger      *slog.Logger
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithGeoLocator sets the upstream geo-IP service. The Engine wraps it with
// the Redis cache, timeout and throttle from Config.Geo.Cache.
func (b *Builder) WithGeoLocator(l geo.Locator) *Builder {
	b.locator = l
	return b
}

func (b *Builder) WithThreatIntel(t risk.ThreatIntel) *Builder {
	b.intel = t
	return b
}

func (b *Builder) WithDeliverer(d mfa.Deliverer) *Builder {
	b.deliverer = d
	return b
}

func (b *Builder) WithCaptcha(v CaptchaVerifier) *Builder {
	b.captcha = v
	return b
}

// WithPolicyStore sets the authorization source. Without one every
// permission check is denied.
func (b *Builder) WithPolicyStore(s permission.PolicyStore) *Builder {
	b.policyStore = s
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for every component. Tests use it.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default().With("component", "riskauth")
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		users:   b.users,
		captcha: b.captcha,
		logger:  logger,
		now:     now,
	}

	// -------- SHARED STATE --------
	engine.limiter = rate.New(b.redis, rate.WithClock(now))
	engine.lockout = limiters.NewLockoutLimiter(b.redis, limiters.LockoutConfig{
		Threshold:     cfg.Lockout.Threshold,
		Duration:      cfg.Lockout.Duration,
		FailureWindow: cfg.Lockout.FailureWindow,
	}, now)
	engine.devices = device.NewStore(b.redis, cfg.Device.RedisPrefix, now)
	engine.sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix, now)
	engine.passes = stores.NewPassStore(b.redis, "")

	// -------- RISK --------
	riskOpts := []risk.Option{
		risk.WithDeviceTrust(engine.devices),
		risk.WithEvaluator(geo.NewEvaluator(geo.EvaluatorConfig{
			MaxSpeedKmh: cfg.Geo.MaxSpeedKmh,
			Epsilon:     cfg.Geo.Epsilon,
			JitterKm:    cfg.Geo.JitterKm,
		})),
		risk.WithLogger(logger),
		risk.WithClock(now),
	}
	if b.locator != nil {
		riskOpts = append(riskOpts, risk.WithLocator(geo.NewCachedLocator(b.locator, b.redis, cfg.Geo.Cache, logger)))
	}
	if b.intel != nil {
		riskOpts = append(riskOpts, risk.WithThreatIntel(b.intel))
	}
	re, err := risk.New(cfg.Risk, riskOpts...)
	if err != nil {
		return nil, err
	}
	engine.risk = re

	// -------- MFA --------
	mfaOpts := []mfa.Option{
		mfa.WithBackupCodes(b.users),
		mfa.WithLogger(logger),
		mfa.WithClock(now),
	}
	if b.deliverer != nil {
		mfaOpts = append(mfaOpts, mfa.WithDeliverer(b.deliverer))
	}
	mm, err := mfa.NewManager(b.redis, engine.limiter, cfg.MFA, mfaOpts...)
	if err != nil {
		return nil, err
	}
	engine.mfa = mm

	// -------- CREDENTIALS AND TOKENS --------
	ph, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, err
	}
	engine.passwords = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: cfg.JWT.SigningMethod,
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		KeyID:         cfg.JWT.KeyID,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwt = jm

	// -------- AUTHORIZATION --------
	policyStore := b.policyStore
	if policyStore == nil {
		policyStore = permission.StaticStore{Set: &permission.PolicySet{}}
	}
	engine.authz = permission.NewEngine(policyStore, now, logger)

	// -------- OBSERVABILITY --------
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:       cfg.Audit.Enabled,
		BufferSize:    cfg.Audit.BufferSize,
		DropIfFull:    cfg.Audit.DropIfFull,
		RetryBackoff:  cfg.Audit.RetryBackoff,
		MaxBackoff:    cfg.Audit.MaxBackoff,
		DrainAttempts: cfg.Audit.DrainAttempts,
		MaxAttempts:   cfg.Audit.MaxAttempts,
	}, b.auditSink, logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
