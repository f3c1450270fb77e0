package limiters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLockout(t *testing.T, now func() time.Time) *LockoutLimiter {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewLockoutLimiter(rdb, LockoutConfig{
		Threshold:     5,
		Duration:      30 * time.Minute,
		FailureWindow: 24 * time.Hour,
	}, now)
}

func TestLockoutThresholdSetsLockedUntil(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := newTestLockout(t, func() time.Time { return base })
	ctx := context.Background()

	var st LockoutState
	var err error
	for i := 1; i <= 4; i++ {
		st, err = l.RecordFailure(ctx, "u1")
		if err != nil {
			t.Fatalf("RecordFailure %d: %v", i, err)
		}
		if st.Locked(base) {
			t.Fatalf("attempt %d: locked too early", i)
		}
	}

	st, err = l.RecordFailure(ctx, "u1")
	if err != nil {
		t.Fatalf("RecordFailure 5: %v", err)
	}
	if st.FailedAttempts != 5 {
		t.Fatalf("expected 5 failures, got %d", st.FailedAttempts)
	}
	if !st.LockedUntil.Equal(base.Add(30 * time.Minute)) {
		t.Fatalf("expected lockedUntil=%v, got %v", base.Add(30*time.Minute), st.LockedUntil)
	}
}

func TestLockoutFailuresWhileLockedDoNotExtend(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	l := newTestLockout(t, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := l.RecordFailure(ctx, "u1"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	first, _ := l.State(ctx, "u1")

	mu.Lock()
	now = now.Add(10 * time.Minute)
	mu.Unlock()

	st, err := l.RecordFailure(ctx, "u1")
	if err != nil {
		t.Fatalf("RecordFailure while locked: %v", err)
	}
	if !st.LockedUntil.Equal(first.LockedUntil) {
		t.Fatalf("lock extended from %v to %v", first.LockedUntil, st.LockedUntil)
	}
	if st.FailedAttempts != 5 {
		t.Fatalf("counter changed while locked: %d", st.FailedAttempts)
	}
}

func TestLockoutConcurrentFailuresCountEveryAttempt(t *testing.T) {
	l := newTestLockout(t, nil)
	l.config.Threshold = 1000

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := l.RecordFailure(context.Background(), "u1"); err != nil {
				t.Errorf("RecordFailure: %v", err)
			}
		}()
	}
	wg.Wait()

	st, err := l.State(context.Background(), "u1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.FailedAttempts != n {
		t.Fatalf("expected %d failures, got %d", n, st.FailedAttempts)
	}
}

func TestLockoutResetClearsState(t *testing.T) {
	l := newTestLockout(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = l.RecordFailure(ctx, "u1")
	}
	if err := l.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	st, err := l.State(ctx, "u1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.FailedAttempts != 0 || !st.LockedUntil.IsZero() {
		t.Fatalf("expected cleared state, got %+v", st)
	}
}

func TestLockoutNilSafe(t *testing.T) {
	var l *LockoutLimiter
	if _, err := l.RecordFailure(context.Background(), "u1"); err != nil {
		t.Fatalf("nil RecordFailure: %v", err)
	}
	if err := l.Reset(context.Background(), "u1"); err != nil {
		t.Fatalf("nil Reset: %v", err)
	}
}

func TestLockoutExpiredLockRestartsStreak(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	l := newTestLockout(t, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := l.RecordFailure(ctx, "u1"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	mu.Lock()
	now = now.Add(31 * time.Minute)
	mu.Unlock()

	st, err := l.State(ctx, "u1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.FailedAttempts != 0 || !st.LockedUntil.IsZero() {
		t.Fatalf("expected empty state after lock expiry, got %+v", st)
	}

	st, err = l.RecordFailure(ctx, "u1")
	if err != nil {
		t.Fatalf("RecordFailure after expiry: %v", err)
	}
	if st.FailedAttempts != 1 || st.Locked(clock()) {
		t.Fatalf("expected a fresh streak of 1, got %+v", st)
	}
}
