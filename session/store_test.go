package session

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

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	return NewStore(rdb, "as", clock.Now), mr, clock
}

func testSession(clock *fakeClock, id string) *Session {
	return &Session{
		SessionID:   id,
		UserID:      "u-1",
		Roles:       []string{"clinician", "auditor"},
		Fingerprint: "fp-1",
		MFA:         true,
		RefreshHash: [32]byte{1},
		CreatedAt:   clock.Now(),
		ExpiresAt:   clock.Now().Add(time.Hour),
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store, mr, clock := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession(clock, "sid-1")

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Validate(ctx, "sid-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.UserID != "u-1" || len(got.Roles) != 2 || !got.MFA || got.RefreshHash != sess.RefreshHash {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("expected expiry %v, got %v", sess.ExpiresAt, got.ExpiresAt)
	}
	if ttl := mr.TTL("as:sid-1"); ttl != time.Hour {
		t.Fatalf("expected 1h redis ttl, got %v", ttl)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRotateThenReplayRevokes(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	ctx := context.Background()
	if err := store.Save(ctx, testSession(clock, "sid-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Rotate(ctx, "sid-1", [32]byte{1}, [32]byte{2}); err != nil {
		t.Fatalf("first rotate: %v", err)
	}

	if _, err := store.Rotate(ctx, "sid-1", [32]byte{1}, [32]byte{3}); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse on replay, got %v", err)
	}

	// The legitimate holder of the rotated secret is cut off too.
	if _, err := store.Rotate(ctx, "sid-1", [32]byte{2}, [32]byte{4}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked after reuse, got %v", err)
	}
	if _, err := store.Validate(ctx, "sid-1"); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected revoked session, got %v", err)
	}
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	ctx := context.Background()
	if err := store.Save(ctx, testSession(clock, "sid-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	const n = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		next := [32]byte{byte(10 + i)}
		go func() {
			defer wg.Done()
			if _, err := store.Rotate(ctx, "sid-1", [32]byte{1}, next); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", got)
	}
}

func TestRotateExpired(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	ctx := context.Background()
	if err := store.Save(ctx, testSession(clock, "sid-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	clock.Advance(time.Hour)
	if _, err := store.Rotate(ctx, "sid-1", [32]byte{1}, [32]byte{2}); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := store.Rotate(ctx, "sid-1", [32]byte{1}, [32]byte{2}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	ctx := context.Background()
	if err := store.Save(ctx, testSession(clock, "sid-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	changed, err := store.Revoke(ctx, "sid-1")
	if err != nil || !changed {
		t.Fatalf("first revoke: changed=%v err=%v", changed, err)
	}
	changed, err = store.Revoke(ctx, "sid-1")
	if err != nil || changed {
		t.Fatalf("second revoke: changed=%v err=%v", changed, err)
	}
	changed, err = store.Revoke(ctx, "missing")
	if err != nil || changed {
		t.Fatalf("missing revoke: changed=%v err=%v", changed, err)
	}

	if _, err := store.Rotate(ctx, "sid-1", [32]byte{1}, [32]byte{2}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestRevokeAll(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	ctx := context.Background()
	for _, id := range []string{"sid-1", "sid-2", "sid-3"} {
		if err := store.Save(ctx, testSession(clock, id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if _, err := store.Revoke(ctx, "sid-2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	n, err := store.RevokeAll(ctx, "u-1")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sessions revoked, got %d", n)
	}

	ids, err := store.ActiveSessionIDs(ctx, "u-1")
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty index, got %v", ids)
	}
	for _, id := range []string{"sid-1", "sid-2", "sid-3"} {
		if _, err := store.Validate(ctx, id); !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("%s: expected revoked, got %v", id, err)
		}
	}
}

func TestUserIndexFollowsPrefix(t *testing.T) {
	tenantA, mr, clock := newSessionStoreTest(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	tenantB := NewStore(rdb, "bs", clock.Now)
	ctx := context.Background()

	if err := tenantA.Save(ctx, testSession(clock, "sid-a")); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := tenantB.Save(ctx, testSession(clock, "sid-b")); err != nil {
		t.Fatalf("save b: %v", err)
	}
	if !mr.Exists("as:user:u-1") || !mr.Exists("bs:user:u-1") {
		t.Fatalf("expected per-prefix user indexes, got keys %v", mr.Keys())
	}

	n, err := tenantB.RevokeAll(ctx, "u-1")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the bs session revoked, got %d", n)
	}
	if _, err := tenantA.Validate(ctx, "sid-a"); err != nil {
		t.Fatalf("other prefix session must survive, got %v", err)
	}
}

func TestSaveRejectsExpiredSession(t *testing.T) {
	store, _, clock := newSessionStoreTest(t)
	sess := testSession(clock, "sid-1")
	sess.ExpiresAt = clock.Now()

	if err := store.Save(context.Background(), sess); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}
