package risk

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/riskAuth/device"
	"github.com/MrEthical07/riskAuth/geo"
)

// DeviceTrust answers whether a fingerprint is trusted for a user.
type DeviceTrust interface {
	IsTrusted(ctx context.Context, fingerprint, userID string) (bool, error)
}

// Engine computes assessments. It holds no mutable state besides a cache of
// loaded time zones and is safe for concurrent use.
type Engine struct {
	cfg      Config
	devices  DeviceTrust
	locator  geo.Locator
	velocity *geo.Evaluator
	intel    ThreatIntel
	logger   *slog.Logger
	now      func() time.Time

	zones sync.Map // name -> *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

// WithDeviceTrust sets the device trust store. Without one every device is untrusted.
func WithDeviceTrust(d DeviceTrust) Option { return func(e *Engine) { e.devices = d } }

// WithLocator sets the geo-IP locator. Without one travel and local time use defaults.
func WithLocator(l geo.Locator) Option { return func(e *Engine) { e.locator = l } }

// WithEvaluator overrides the travel evaluator.
func WithEvaluator(v *geo.Evaluator) Option { return func(e *Engine) { e.velocity = v } }

// WithThreatIntel sets the reputation source.
func WithThreatIntel(t ThreatIntel) Option { return func(e *Engine) { e.intel = t } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock sets the clock used when Request.At is zero.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New validates cfg and builds an Engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.velocity == nil {
		e.velocity = geo.NewEvaluator(geo.EvaluatorConfig{})
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Config returns the policy the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Assess scores req for subject.
func (e *Engine) Assess(ctx context.Context, req Request, subject Subject) Assessment {
	at := req.At
	if at.IsZero() {
		at = e.now()
	}

	a := Assessment{
		Fingerprint: device.Fingerprint(device.Attributes{
			IP:        req.IP,
			UserAgent: req.UserAgent,
			Accept:    req.Accept,
		}),
	}
	w := e.cfg.Weights

	if e.devices != nil && subject.ID != "" {
		trusted, err := e.devices.IsTrusted(ctx, a.Fingerprint, subject.ID)
		if err != nil {
			e.logger.Warn("device trust lookup failed; treating device as untrusted", "user_id", subject.ID, "error", err)
		}
		a.DeviceTrusted = trusted && err == nil
	}
	if !a.DeviceTrusted {
		a.add(FactorNewDevice, w.NewDevice)
	}

	if e.intel != nil && req.IP != "" {
		listed, err := e.intel.Listed(ctx, req.IP)
		switch {
		case err != nil && !listed:
			e.logger.Warn("threat intel lookup failed; skipping factor", "error", err)
		case listed:
			a.add(FactorMaliciousIP, w.MaliciousIP)
		}
	}

	if e.locator != nil && req.IP != "" {
		loc, err := e.locator.Locate(ctx, req.IP)
		if err != nil {
			if !errors.Is(err, geo.ErrLookupUnavailable) {
				err = errors.Join(geo.ErrLookupUnavailable, err)
			}
			e.logger.Debug("geo lookup skipped", "error", err)
		} else {
			a.Location = &loc
		}
	}

	if a.Location != nil && subject.LastKnownGeo != nil && !subject.LastLoginAt.IsZero() {
		v := e.velocity.Evaluate(*subject.LastKnownGeo, subject.LastLoginAt, *a.Location, at)
		a.Velocity = &v
		if v.Impossible {
			a.add(FactorImpossibleTravel, w.ImpossibleTravel)
		}
	}

	if e.suspiciousHour(at, a.Location) {
		a.add(FactorSuspiciousTiming, w.SuspiciousTiming)
	}

	if extra := subject.FailedAttempts - w.FailureGrace; extra > 0 && w.RepeatedFailure > 0 {
		// Anything past MaxScore is clamped anyway; cap before multiplying.
		if limit := MaxScore/w.RepeatedFailure + 1; extra > limit {
			extra = limit
		}
		a.add(FactorRepeatedFailures, w.RepeatedFailure*extra)
	}

	a.Score = clamp(a.Score)
	a.Requirements = e.cfg.Thresholds.Tier(a.Score, a.DeviceTrusted)
	return a
}

func (a *Assessment) add(name string, weight int) {
	a.Factors = append(a.Factors, Factor{Name: name, Weight: weight})
	if a.Score < MaxScore {
		a.Score += weight
	}
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

func (e *Engine) suspiciousHour(at time.Time, loc *geo.Location) bool {
	zone := ""
	if loc != nil {
		zone = loc.Timezone
	}
	hour := at.In(e.zone(zone)).Hour()

	start, end := e.cfg.SafeHourStart, e.cfg.SafeHourEnd
	switch {
	case start == end:
		return false
	case start < end:
		return hour < start || hour >= end
	default:
		return hour < start && hour >= end
	}
}

func (e *Engine) zone(name string) *time.Location {
	if name == "" {
		name = e.cfg.DefaultTimezone
	}
	if name == "" || name == "UTC" {
		return time.UTC
	}
	if cached, ok := e.zones.Load(name); ok {
		return cached.(*time.Location)
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		if name != e.cfg.DefaultTimezone {
			return e.zone("")
		}
		return time.UTC
	}
	e.zones.Store(name, tz)
	return tz
}
