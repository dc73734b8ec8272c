package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agrimandi/auth-service/internal/kv"
)

func newStore(t *testing.T) (kv.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return kv.NewRedisStore(client), mr
}

func TestOTPLimiterWindow(t *testing.T) {
	store, mr := newStore(t)
	l := NewOTPLimiter(store)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, "9876543210")
		if err != nil || !ok {
			t.Fatalf("Allow #%d = %v, %v", i, ok, err)
		}
	}
	ok, err := l.Allow(ctx, "9876543210")
	if err != nil || ok {
		t.Fatalf("4th Allow = %v, want refused", ok)
	}

	// Another phone is unaffected.
	if ok, _ := l.Allow(ctx, "9000011111"); !ok {
		t.Error("unrelated phone refused")
	}

	// The window expires and the budget resets.
	mr.FastForward(601 * time.Second)
	if ok, _ := l.Allow(ctx, "9876543210"); !ok {
		t.Error("Allow refused after window expiry")
	}
}

func TestLoginGuardLockout(t *testing.T) {
	store, _ := newStore(t)
	g := NewLoginGuard(store)
	ctx := context.Background()
	phone := "9876543210"

	remaining, locked, _, err := g.RecordFailure(ctx, phone)
	if err != nil || locked || remaining != 2 {
		t.Fatalf("failure #1 = remaining %d locked %v err %v", remaining, locked, err)
	}
	remaining, locked, _, _ = g.RecordFailure(ctx, phone)
	if locked || remaining != 1 {
		t.Fatalf("failure #2 = remaining %d locked %v", remaining, locked)
	}
	remaining, locked, until, _ := g.RecordFailure(ctx, phone)
	if !locked || remaining != 0 {
		t.Fatalf("failure #3 = remaining %d locked %v", remaining, locked)
	}
	wantUntil := time.Now().Add(kv.LoginTTL)
	if until.Before(wantUntil.Add(-5*time.Second)) || until.After(wantUntil.Add(5*time.Second)) {
		t.Errorf("lockout deadline %v not ~1800s out", until)
	}

	locked, _, err = g.Status(ctx, phone)
	if err != nil || !locked {
		t.Fatalf("Status after lockout = %v, %v", locked, err)
	}
}

func TestLoginGuardStaleLockoutCleared(t *testing.T) {
	store, _ := newStore(t)
	g := NewLoginGuard(store)
	ctx := context.Background()
	phone := "9876543210"

	past := time.Now().Add(-time.Minute).Format(time.RFC3339)
	if err := store.SetEX(ctx, kv.LoginLockoutKey(phone), past, kv.LoginTTL); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Incr(ctx, kv.LoginAttemptsKey(phone)); err != nil {
		t.Fatal(err)
	}

	locked, _, err := g.Status(ctx, phone)
	if err != nil || locked {
		t.Fatalf("stale lockout reported active: %v, %v", locked, err)
	}
	if _, ok, _ := store.Get(ctx, kv.LoginAttemptsKey(phone)); ok {
		t.Error("attempts key not cleared with stale lockout")
	}
}

func TestLoginGuardReset(t *testing.T) {
	store, _ := newStore(t)
	g := NewLoginGuard(store)
	ctx := context.Background()
	phone := "9876543210"

	_, _, _, _ = g.RecordFailure(ctx, phone)
	_, _, _, _ = g.RecordFailure(ctx, phone)
	if err := g.Reset(ctx, phone); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	remaining, locked, _, _ := g.RecordFailure(ctx, phone)
	if locked || remaining != 2 {
		t.Errorf("counter not reset: remaining %d locked %v", remaining, locked)
	}
}
