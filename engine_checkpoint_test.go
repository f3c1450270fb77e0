package riskAuth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckpointPassesForUnchangedContext(t *testing.T) {
	f := newEngineFixture(t, lowRisk)
	ctx := requestCtx()
	pair := f.login(t, ctx)

	a, err := f.engine.Checkpoint(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	if a.Score != 0 || !a.DeviceTrusted {
		t.Fatalf("expected trusted zero-score checkpoint, got %d trusted=%v", a.Score, a.DeviceTrusted)
	}
	if _, err := f.engine.ValidateAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("session should survive a passed checkpoint, got %v", err)
	}
}

func TestCheckpointStepUpRevokesSessionAndDevice(t *testing.T) {
	f := newEngineFixture(t, func(cfg *Config) {
		lowRisk(cfg)
		cfg.Checkpoint.StepUpAbove = 20
	})
	ctx := requestCtx()
	pair := f.login(t, ctx)

	// Same session, now outside safe hours.
	f.clock.Set(time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC))
	refreshed, err := f.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	a, err := f.engine.Checkpoint(ctx, refreshed.AccessToken)
	if !errors.Is(err, ErrStepUpRequired) {
		t.Fatalf("expected ErrStepUpRequired, got %v", err)
	}
	if a == nil || a.Score <= 20 {
		t.Fatalf("expected the triggering assessment, got %+v", a)
	}

	if _, err := f.engine.ValidateAccess(ctx, refreshed.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected session revoked, got %v", err)
	}
	trusted, err := f.engine.devices.IsTrusted(context.Background(), a.Fingerprint, "u1")
	if err != nil || trusted {
		t.Fatalf("expected device trust revoked, got %v err=%v", trusted, err)
	}

	f.engine.Close()
	if !f.sink.has(auditEventStepUpRequired) {
		t.Fatalf("expected step_up_required audit event, got %v", f.sink.types())
	}
}

func TestCheckpointRejectsRevokedSession(t *testing.T) {
	f := newEngineFixture(t, lowRisk)
	ctx := requestCtx()
	pair := f.login(t, ctx)

	if err := f.engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := f.engine.Checkpoint(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestCheckpointDeactivatedUserStepsUp(t *testing.T) {
	f := newEngineFixture(t, lowRisk)
	ctx := requestCtx()
	pair := f.login(t, ctx)

	u, _ := f.users.GetUserByID(ctx, "u1")
	u.Active = false
	f.users.put(*u)

	if _, err := f.engine.Checkpoint(ctx, pair.AccessToken); !errors.Is(err, ErrStepUpRequired) {
		t.Fatalf("expected ErrStepUpRequired, got %v", err)
	}
	if _, err := f.engine.ValidateAccess(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected session revoked, got %v", err)
	}
}
