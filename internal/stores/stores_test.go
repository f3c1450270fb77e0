package stores

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

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestOTPChallengeConsumeIsSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewOTPChallengeStore(rdb, "", nil)
	ctx := context.Background()

	if _, err := store.Save(ctx, "u1", "digest", "sms", 5*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	res, err := store.Consume(ctx, "u1", "digest")
	if err != nil || res != ConsumeOK {
		t.Fatalf("first consume: res=%v err=%v", res, err)
	}
	res, err = store.Consume(ctx, "u1", "digest")
	if err != nil || res != ConsumeNotFound {
		t.Fatalf("second consume: res=%v err=%v", res, err)
	}
}

func TestOTPChallengeMismatchKeepsRecord(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewOTPChallengeStore(rdb, "", nil)
	ctx := context.Background()

	if _, err := store.Save(ctx, "u1", "digest", "email", 5*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res, _ := store.Consume(ctx, "u1", "wrong"); res != ConsumeMismatch {
		t.Fatalf("expected mismatch, got %v", res)
	}
	if res, _ := store.Consume(ctx, "u1", "digest"); res != ConsumeOK {
		t.Fatalf("expected record to survive a mismatch, got %v", res)
	}
}

func TestOTPChallengeExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	_, rdb := newTestRedis(t)
	store := NewOTPChallengeStore(rdb, "", clock)
	ctx := context.Background()

	if _, err := store.Save(ctx, "u1", "digest", "sms", 300*time.Second); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Get(ctx, "u1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	mu.Lock()
	now = now.Add(301 * time.Second)
	mu.Unlock()

	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound after expiry, got %v", err)
	}
	if res, _ := store.Consume(ctx, "u1", "digest"); res != ConsumeNotFound {
		t.Fatalf("expected expired challenge to be rejected, got %v", res)
	}
}

func TestOTPChallengeConcurrentConsumeSingleWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewOTPChallengeStore(rdb, "", nil)
	ctx := context.Background()

	if _, err := store.Save(ctx, "u1", "digest", "sms", time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	const n = 16
	var wins atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			res, err := store.Consume(ctx, "u1", "digest")
			if err != nil {
				t.Errorf("Consume: %v", err)
				return
			}
			if res == ConsumeOK {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected one winner, got %d", wins.Load())
	}
}

func TestTOTPStorePendingAndSteps(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewTOTPStore(rdb, "")
	ctx := context.Background()

	if _, err := store.Pending(ctx, "u1"); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("expected ErrEnrollmentNotFound, got %v", err)
	}
	if err := store.SavePending(ctx, "u1", PendingEnrollment{Secret: "OLD", BackupHashes: []string{"x"}}, time.Minute); err != nil {
		t.Fatalf("SavePending: %v", err)
	}
	if err := store.SavePending(ctx, "u1", PendingEnrollment{Secret: "SECRET", BackupHashes: []string{"h1", "h2"}}, time.Minute); err != nil {
		t.Fatalf("SavePending: %v", err)
	}
	p, err := store.Pending(ctx, "u1")
	if err != nil || p.Secret != "SECRET" {
		t.Fatalf("Pending: %+v %v", p, err)
	}
	if len(p.BackupHashes) != 2 || p.BackupHashes[0] != "h1" || p.BackupHashes[1] != "h2" {
		t.Fatalf("expected the latest backup hashes, got %v", p.BackupHashes)
	}
	if ok, _ := store.ClearPending(ctx, "u1"); !ok {
		t.Fatal("expected first clear to report existing enrollment")
	}
	if ok, _ := store.ClearPending(ctx, "u1"); ok {
		t.Fatal("expected second clear to report nothing")
	}

	first, err := store.MarkStepUsed(ctx, "u1", 42, time.Minute)
	if err != nil || !first {
		t.Fatalf("first MarkStepUsed: %v %v", first, err)
	}
	again, err := store.MarkStepUsed(ctx, "u1", 42, time.Minute)
	if err != nil || again {
		t.Fatalf("expected replayed step to be refused: %v %v", again, err)
	}
}

func TestPassStoreLifecycle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewPassStore(rdb, "")
	ctx := context.Background()

	if ok, err := store.Has(ctx, "captcha", "u1", "fp"); err != nil || ok {
		t.Fatalf("expected no pass, ok=%v err=%v", ok, err)
	}
	if err := store.Mark(ctx, "captcha", "u1", "fp", time.Minute); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if ok, _ := store.Has(ctx, "captcha", "u1", "fp"); !ok {
		t.Fatal("expected pass after Mark")
	}
	if ok, _ := store.Has(ctx, "captcha", "u1", "other-device"); ok {
		t.Fatal("pass must be bound to the device")
	}

	mr.FastForward(2 * time.Minute)
	if ok, _ := store.Has(ctx, "captcha", "u1", "fp"); ok {
		t.Fatal("expected pass to expire")
	}

	_ = store.Mark(ctx, "captcha", "u1", "fp", time.Minute)
	if err := store.Clear(ctx, "captcha", "u1", "fp"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if ok, _ := store.Has(ctx, "captcha", "u1", "fp"); ok {
		t.Fatal("expected pass to be cleared")
	}
}
