package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T) (*Limiter, *testClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(rdb, WithClock(clock.Now)), clock
}

func TestFixedWindowAdmitsLimitThenRejects(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "login:ip:10.0.0.1", 3, time.Minute, FixedWindow)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("call %d: expected admission", i+1)
		}
	}

	ok, err := l.Allow(ctx, "login:ip:10.0.0.1", 3, time.Minute, FixedWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected 4th call in the same window to be rejected")
	}
}

func TestFixedWindowResetsAtBoundary(t *testing.T) {
	l, clock := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(ctx, "k", 3, time.Minute, FixedWindow); !ok {
			t.Fatalf("call %d: expected admission", i+1)
		}
	}
	clock.Advance(time.Minute)

	ok, err := l.Allow(ctx, "k", 3, time.Minute, FixedWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected admission after window boundary")
	}
}

func TestConcurrentCallersAdmitExactlyLimit(t *testing.T) {
	for _, strategy := range []Strategy{FixedWindow, SlidingWindow, TokenBucket} {
		t.Run(string(strategy), func(t *testing.T) {
			l, _ := newTestLimiter(t)

			const n = 24
			var admitted atomic.Int64
			var wg sync.WaitGroup
			wg.Add(n)
			for i := 0; i < n; i++ {
				go func() {
					defer wg.Done()
					ok, err := l.Allow(context.Background(), "race", 3, time.Minute, strategy)
					if err != nil {
						t.Errorf("unexpected error: %v", err)
						return
					}
					if ok {
						admitted.Add(1)
					}
				}()
			}
			wg.Wait()

			if got := admitted.Load(); got != 3 {
				t.Fatalf("expected exactly 3 admitted, got %d", got)
			}
		})
	}
}

func TestSlidingWindowDiscardsOldTimestamps(t *testing.T) {
	l, clock := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(ctx, "s", 2, time.Minute, SlidingWindow); !ok {
			t.Fatalf("call %d: expected admission", i+1)
		}
		clock.Advance(20 * time.Second)
	}

	// 40s after the first hit both entries are still inside the window.
	if ok, _ := l.Allow(ctx, "s", 2, time.Minute, SlidingWindow); ok {
		t.Fatal("expected rejection while both timestamps are in the window")
	}

	// The first entry falls out 60s after it was recorded.
	clock.Advance(21 * time.Second)
	if ok, _ := l.Allow(ctx, "s", 2, time.Minute, SlidingWindow); !ok {
		t.Fatal("expected admission once the oldest timestamp expired")
	}
}

func TestTokenBucketRefillsLazily(t *testing.T) {
	l, clock := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if ok, _ := l.Allow(ctx, "b", 4, time.Minute, TokenBucket); !ok {
			t.Fatalf("call %d: expected token", i+1)
		}
	}
	if ok, _ := l.Allow(ctx, "b", 4, time.Minute, TokenBucket); ok {
		t.Fatal("expected empty bucket")
	}

	// 4 tokens per minute: one token every 15s.
	clock.Advance(15 * time.Second)
	if ok, _ := l.Allow(ctx, "b", 4, time.Minute, TokenBucket); !ok {
		t.Fatal("expected one refilled token")
	}
	if ok, _ := l.Allow(ctx, "b", 4, time.Minute, TokenBucket); ok {
		t.Fatal("expected bucket to be empty again")
	}
}

func TestZeroLimitAlwaysRejects(t *testing.T) {
	l, _ := newTestLimiter(t)

	for _, strategy := range []Strategy{FixedWindow, SlidingWindow, TokenBucket} {
		ok, err := l.Allow(context.Background(), "zero", 0, time.Minute, strategy)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", strategy, err)
		}
		if ok {
			t.Fatalf("%s: expected zero limit to reject", strategy)
		}
	}
}

func TestInvalidInput(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		limit    int
		window   time.Duration
		strategy Strategy
	}{
		{"zero window", 3, 0, FixedWindow},
		{"negative window", 3, -time.Second, SlidingWindow},
		{"negative limit", -1, time.Minute, TokenBucket},
		{"unknown strategy", 3, time.Minute, Strategy("leaky")},
	}
	for _, tc := range cases {
		if _, err := l.Allow(ctx, "k", tc.limit, tc.window, tc.strategy); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestCheckMapsRejection(t *testing.T) {
	l, _ := newTestLimiter(t)
	p := Policy{Limit: 1, Window: time.Minute, Strategy: FixedWindow}

	if err := l.Check(context.Background(), "c", p); err != nil {
		t.Fatalf("first check: %v", err)
	}
	if err := l.Check(context.Background(), "c", p); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRedisFailureIsWrapped(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	l := New(rdb)
	if _, err := l.Allow(context.Background(), "k", 1, time.Minute, FixedWindow); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
