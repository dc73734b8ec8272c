// Package ratelimit implements the per-phone OTP request limiter and the
// failed-login lockout engine on top of the ephemeral store's atomic
// counters. Two concerns, one mechanism: counters with TTL, converted into
// refusals or lockout windows at a threshold.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/agrimandi/auth-service/internal/kv"
)

// OTPLimiter enforces at most kv.OTPRateLimit OTP generations per phone per
// 600-second window.
type OTPLimiter struct {
	store kv.Store
}

// NewOTPLimiter creates an OTPLimiter.
func NewOTPLimiter(store kv.Store) *OTPLimiter {
	return &OTPLimiter{store: store}
}

// Allow consumes one generation slot for the phone. The increment that
// transitions the counter 0→1 is the single writer that sets the window TTL.
func (l *OTPLimiter) Allow(ctx context.Context, phone string) (bool, error) {
	key := kv.OTPRateKey(phone)
	n, err := l.store.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("otp rate incr: %w", err)
	}
	if n == 1 {
		if err := l.store.Expire(ctx, key, kv.OTPRateTTL); err != nil {
			return false, fmt.Errorf("otp rate expire: %w", err)
		}
	}
	return n <= kv.OTPRateLimit, nil
}

// LoginGuard converts repeated verification failures into a lockout window:
// kv.LoginThreshold failures within 1800 s lock the phone for 1800 s.
type LoginGuard struct {
	store kv.Store
	now   func() time.Time
}

// NewLoginGuard creates a LoginGuard.
func NewLoginGuard(store kv.Store) *LoginGuard {
	return &LoginGuard{store: store, now: time.Now}
}

// Status reports whether the phone is currently locked. A lockout key holding
// a past deadline is stale; both keys are cleared and the phone is usable.
func (g *LoginGuard) Status(ctx context.Context, phone string) (locked bool, until time.Time, err error) {
	v, ok, err := g.store.Get(ctx, kv.LoginLockoutKey(phone))
	if err != nil {
		return false, time.Time{}, fmt.Errorf("lockout get: %w", err)
	}
	if !ok {
		return false, time.Time{}, nil
	}
	deadline, perr := time.Parse(time.RFC3339, v)
	if perr != nil || !deadline.After(g.now()) {
		if derr := g.store.Del(ctx, kv.LoginLockoutKey(phone), kv.LoginAttemptsKey(phone)); derr != nil {
			return false, time.Time{}, fmt.Errorf("clear stale lockout: %w", derr)
		}
		return false, time.Time{}, nil
	}
	return true, deadline, nil
}

// RecordFailure counts one failed verification. It returns the remaining
// attempts before lockout; when the threshold is reached it writes the
// lockout key and returns locked=true with the deadline.
func (g *LoginGuard) RecordFailure(ctx context.Context, phone string) (remaining int, locked bool, until time.Time, err error) {
	key := kv.LoginAttemptsKey(phone)
	n, err := g.store.Incr(ctx, key)
	if err != nil {
		return 0, false, time.Time{}, fmt.Errorf("login attempts incr: %w", err)
	}
	if n == 1 {
		if err := g.store.Expire(ctx, key, kv.LoginTTL); err != nil {
			return 0, false, time.Time{}, fmt.Errorf("login attempts expire: %w", err)
		}
	}
	remaining = kv.LoginThreshold - int(n)
	if remaining < 0 {
		remaining = 0
	}
	if int(n) >= kv.LoginThreshold {
		deadline := g.now().Add(kv.LoginTTL)
		if err := g.store.SetEX(ctx, kv.LoginLockoutKey(phone), deadline.Format(time.RFC3339), kv.LoginTTL); err != nil {
			return remaining, false, time.Time{}, fmt.Errorf("set lockout: %w", err)
		}
		return remaining, true, deadline, nil
	}
	return remaining, false, time.Time{}, nil
}

// Reset clears both keys after a successful verification.
func (g *LoginGuard) Reset(ctx context.Context, phone string) error {
	return g.store.Del(ctx, kv.LoginAttemptsKey(phone), kv.LoginLockoutKey(phone))
}
