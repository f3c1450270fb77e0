package riskAuth

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/riskAuth/device"
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

// Engine is the authentication orchestrator. It holds no per-request state;
// every decision-relevant counter lives in Redis, so any number of Engines
// may serve the same users. Build one with [New].
type Engine struct {
	config Config

	users   UserStore
	captcha CaptchaVerifier

	limiter   *rate.Limiter
	lockout   *limiters.LockoutLimiter
	devices   *device.Store
	sessions  *session.Store
	passes    *stores.PassStore
	risk      *risk.Engine
	mfa       *mfa.Manager
	passwords *password.Argon2
	jwt       *jwt.Manager
	authz     *permission.Engine

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Close flushes the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the configuration the Engine was built with.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// AuditDropped reports events rejected by a full audit buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditRetried reports failed audit deliveries that were retried.
func (e *Engine) AuditRetried() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Retried()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, since time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, e.now().Sub(since))
}

func (e *Engine) ready() bool {
	return e != nil && e.users != nil && e.risk != nil && e.sessions != nil
}

// riskRequest reads the request attributes that travel on ctx.
func (e *Engine) riskRequest(ctx context.Context) risk.Request {
	return risk.Request{
		IP:        ClientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Accept:    acceptFromContext(ctx),
		At:        e.now(),
	}
}

// assess runs the risk engine and records per-factor metrics.
func (e *Engine) assess(ctx context.Context, subject risk.Subject) risk.Assessment {
	start := e.now()
	a := e.risk.Assess(ctx, e.riskRequest(ctx), subject)
	e.metricObserve(MetricAssessLatency, start)

	for _, f := range a.Factors {
		switch f.Name {
		case risk.FactorNewDevice:
			e.metricInc(MetricRiskFactorNewDevice)
		case risk.FactorMaliciousIP:
			e.metricInc(MetricRiskFactorMaliciousIP)
		case risk.FactorImpossibleTravel:
			e.metricInc(MetricRiskFactorImpossibleTravel)
		case risk.FactorSuspiciousTiming:
			e.metricInc(MetricRiskFactorSuspiciousTiming)
		case risk.FactorRepeatedFailures:
			e.metricInc(MetricRiskFactorRepeatedFailures)
		}
	}
	return a
}

func assessmentMetadata(a risk.Assessment) map[string]string {
	md := map[string]string{
		"score":          strconv.Itoa(a.Score),
		"factors":        strings.Join(a.FactorNames(), ","),
		"device_trusted": strconv.FormatBool(a.DeviceTrusted),
	}
	if a.Location != nil {
		md["country"] = a.Location.Country
		md["city"] = a.Location.City
	}
	return md
}
