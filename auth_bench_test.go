package riskAuth

import (
	"testing"
)

func benchmarkConfig(cfg *Config) {
	lowRisk(cfg)
	cfg.Metrics.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = false
	cfg.Audit.Enabled = false
	cfg.RateLimits.LoginPerIP.Limit = 1 << 30
	cfg.RateLimits.LoginPerUser.Limit = 1 << 30
	cfg.RateLimits.Refresh.Limit = 1 << 30
}

func BenchmarkValidateAccess(b *testing.B) {
	f := newEngineFixture(b, benchmarkConfig)
	ctx := requestCtx()
	pair := f.login(b, ctx)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.engine.ValidateAccess(ctx, pair.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	f := newEngineFixture(b, benchmarkConfig)
	ctx := requestCtx()
	refresh := f.login(b, ctx).RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := f.engine.Refresh(ctx, refresh)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		refresh = pair.RefreshToken
	}
}

func BenchmarkCheckpoint(b *testing.B) {
	f := newEngineFixture(b, benchmarkConfig)
	ctx := requestCtx()
	pair := f.login(b, ctx)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.engine.Checkpoint(ctx, pair.AccessToken); err != nil {
			b.Fatalf("checkpoint failed: %v", err)
		}
	}
}

func BenchmarkAuthenticate(b *testing.B) {
	f := newEngineFixture(b, benchmarkConfig)
	ctx := requestCtx()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair := f.login(b, ctx)
		_ = f.engine.Logout(ctx, pair.RefreshToken)
	}
}
