// Package kv is the ephemeral key-value adapter backing OTP material,
// rate-limit counters, lockouts, and pending registration state. All keys
// carry TTLs; cross-request coordination relies on the store's atomic
// increment and set-if-absent primitives.
package kv

import (
	"context"
	"time"
)

// Store is the minimal interface the domain needs from the ephemeral store.
// The concrete client is created in cmd/authd and injected.
type Store interface {
	// Incr atomically increments the counter at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets the TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// SetEX writes value with a TTL, overwriting any existing value.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes value with a TTL only if the key is absent.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// GetDel atomically reads and deletes the key.
	GetDel(ctx context.Context, key string) (string, bool, error)
	// Del removes the given keys.
	Del(ctx context.Context, keys ...string) error
	// TTL returns the remaining lifetime of a key, or false if absent.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
}

// Key scheme. TTLs are fixed by the control plane's windows.
const (
	OTPTTL         = 600 * time.Second
	OTPRateTTL     = 600 * time.Second
	OTPRateLimit   = 3
	LoginTTL       = 1800 * time.Second
	LoginThreshold = 3
	BuyerRegTTL    = 600 * time.Second
	HaulerRegTTL   = 600 * time.Second
)

// OTPKey addresses the stored OTP hash for a scope ("farmer", "buyer",
// "hauler") and phone.
func OTPKey(scope, phone string) string { return "otp:" + scope + ":" + phone }

// OTPRateKey addresses the per-phone OTP generation counter.
func OTPRateKey(phone string) string { return "otp:rate:" + phone }

// LoginAttemptsKey addresses the per-phone failed-verification counter.
func LoginAttemptsKey(phone string) string { return "login:attempts:" + phone }

// LoginLockoutKey addresses the per-phone lockout deadline.
func LoginLockoutKey(phone string) string { return "login:lockout:" + phone }

// BuyerRegKey addresses the pending buyer registration bundle.
func BuyerRegKey(phone string) string { return "buyer_reg:" + phone }

// BuyerRegEmailKey reserves an email while its registration bundle is
// pending. SetNX on this key is what serializes concurrent registrations
// sharing an email.
func BuyerRegEmailKey(email string) string { return "buyer_reg:email:" + email }

// HaulerRegKey addresses pending hauler step-1 state by registration token.
func HaulerRegKey(token string) string { return "hauler_reg:" + token }
