package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestIncrExpire(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	n, err := store.Incr(ctx, "otp:rate:9876543210")
	if err != nil || n != 1 {
		t.Fatalf("Incr = %d, %v", n, err)
	}
	if err := store.Expire(ctx, "otp:rate:9876543210", OTPRateTTL); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	n, _ = store.Incr(ctx, "otp:rate:9876543210")
	if n != 2 {
		t.Fatalf("second Incr = %d, want 2", n)
	}

	mr.FastForward(601 * time.Second)
	if _, ok, _ := store.Get(ctx, "otp:rate:9876543210"); ok {
		t.Error("counter survived TTL expiry")
	}
}

func TestSetGetDel(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SetEX(ctx, "otp:farmer:9876543210", "abc", OTPTTL); err != nil {
		t.Fatalf("SetEX: %v", err)
	}
	v, ok, err := store.Get(ctx, "otp:farmer:9876543210")
	if err != nil || !ok || v != "abc" {
		t.Fatalf("Get = %q/%v/%v", v, ok, err)
	}

	v, ok, err = store.GetDel(ctx, "otp:farmer:9876543210")
	if err != nil || !ok || v != "abc" {
		t.Fatalf("GetDel = %q/%v/%v", v, ok, err)
	}
	if _, ok, _ = store.Get(ctx, "otp:farmer:9876543210"); ok {
		t.Error("key survived GetDel")
	}
	if _, ok, _ = store.GetDel(ctx, "otp:farmer:9876543210"); ok {
		t.Error("second GetDel found a value")
	}
}

func TestSetNX(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "k", "first", time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX = %v/%v", ok, err)
	}
	ok, _ = store.SetNX(ctx, "k", "second", time.Minute)
	if ok {
		t.Error("SetNX overwrote an existing key")
	}
	v, _, _ := store.Get(ctx, "k")
	if v != "first" {
		t.Errorf("value = %q, want first", v)
	}
}

func TestTTL(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, ok, _ := store.TTL(ctx, "absent"); ok {
		t.Error("TTL reported for absent key")
	}
	_ = store.SetEX(ctx, "k", "v", 30*time.Second)
	d, ok, err := store.TTL(ctx, "k")
	if err != nil || !ok || d <= 0 || d > 30*time.Second {
		t.Fatalf("TTL = %v/%v/%v", d, ok, err)
	}
}
