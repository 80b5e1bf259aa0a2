package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, Options{LeaseTTL: time.Minute, TaskTTL: 30 * time.Minute}), mr
}

func TestLeaseExclusivity(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	lease, err := store.AcquireLease(ctx, "s1")
	if err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}

	_, err = store.AcquireLease(ctx, "s1")
	var held *LeaseHeldError
	if !errors.As(err, &held) || held.SessionID != "s1" {
		t.Fatalf("got %v, want LeaseHeldError", err)
	}

	// Unrelated sessions are independent.
	if _, err := store.AcquireLease(ctx, "s2"); err != nil {
		t.Fatalf("AcquireLease other session: %v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := store.AcquireLease(ctx, "s1"); err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
}

func TestReleaseAfterExpiryReportsLoss(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	lease, err := store.AcquireLease(ctx, "s1")
	if err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}

	// The lease expires and someone else takes over.
	mr.FastForward(2 * time.Minute)
	other, err := store.AcquireLease(ctx, "s1")
	if err != nil {
		t.Fatalf("takeover acquire: %v", err)
	}

	var lost *LeaseLostError
	if err := lease.Release(ctx); !errors.As(err, &lost) {
		t.Fatalf("got %v, want LeaseLostError", err)
	}
	// The takeover's lease must survive the stale release.
	if _, err := store.AcquireLease(ctx, "s1"); err == nil {
		t.Fatal("stale release deleted the successor's lease")
	}
	other.Release(ctx)
}

func TestTaskStateRoundtrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	state, err := store.LoadTask(ctx, "s1")
	if err != nil || state.Draft != "" || state.Phase != 0 {
		t.Fatalf("fresh state = (%+v, %v)", state, err)
	}

	if err := store.SaveTask(ctx, "s1", "partial answer", 3); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	if err := store.Cancel(ctx, "s1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	state, err = store.LoadTask(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadTask: %v", err)
	}
	if state.Draft != "partial answer" || state.Phase != 3 || !state.Cancelled {
		t.Fatalf("state = %+v", state)
	}

	if err := store.ClearTask(ctx, "s1"); err != nil {
		t.Fatalf("ClearTask: %v", err)
	}
	state, _ = store.LoadTask(ctx, "s1")
	if state.Draft != "" || state.Cancelled {
		t.Fatalf("state after clear = %+v", state)
	}
}

func TestTaskStateExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	store.SaveTask(ctx, "s1", "draft", 1)
	mr.FastForward(31 * time.Minute)

	state, err := store.LoadTask(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadTask: %v", err)
	}
	if state.Draft != "" {
		t.Fatalf("state survived its TTL: %+v", state)
	}
}

func TestDegradedModeWithoutRedis(t *testing.T) {
	store := NewStore(nil, Options{LeaseTTL: time.Minute})
	ctx := context.Background()

	lease, err := store.AcquireLease(ctx, "s1")
	if err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}
	if _, err := store.AcquireLease(ctx, "s1"); err == nil {
		t.Fatal("local lock did not hold")
	}
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	store.SaveTask(ctx, "s1", "draft", 2)
	state, _ := store.LoadTask(ctx, "s1")
	if state.Draft != "draft" || state.Phase != 2 {
		t.Fatalf("memory state = %+v", state)
	}
}

func TestUnreachableRedisDegradesLease(t *testing.T) {
	// A client pointed at a closed port fails fast; the store must still
	// hand out a local lease.
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	store := NewStore(rdb, Options{LeaseTTL: time.Minute})

	lease, err := store.AcquireLease(context.Background(), "s1")
	if err != nil {
		t.Fatalf("degraded acquire: %v", err)
	}
	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("degraded release: %v", err)
	}
}
