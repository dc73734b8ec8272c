// Package otp implements the one-time-password engine: 6-digit codes drawn
// from a CSPRNG, stored as SHA-256 hashes with a 600-second TTL, verified
// and consumed in a single step.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/agrimandi/auth-service/internal/credentials"
	"github.com/agrimandi/auth-service/internal/kv"
	"github.com/agrimandi/auth-service/internal/ratelimit"
	"github.com/agrimandi/auth-service/internal/sms"
)

// Result is the outcome of a Generate call. Code is returned for development
// logging only — the façade must never place it in a response field.
type Result struct {
	Code    string
	Sent    bool
	Allowed bool
	Reason  string
}

// Engine generates and verifies OTPs for a given scope ("farmer", "buyer",
// "hauler").
type Engine struct {
	store   kv.Store
	limiter *ratelimit.OTPLimiter
	sender  sms.Sender
	enabled bool
	logger  *zap.Logger
}

// NewEngine creates an Engine. smsEnabled=false makes every send a logged
// no-op regardless of the sender.
func NewEngine(store kv.Store, limiter *ratelimit.OTPLimiter, sender sms.Sender, smsEnabled bool, logger *zap.Logger) *Engine {
	return &Engine{store: store, limiter: limiter, sender: sender, enabled: smsEnabled, logger: logger}
}

// Generate draws a fresh code for the phone, stores its hash, and dispatches
// it best-effort. A refused rate limit returns Allowed=false with a reason;
// a failed SMS send leaves the stored code valid and returns Sent=false.
func (e *Engine) Generate(ctx context.Context, scope, phone string) (Result, error) {
	ok, err := e.limiter.Allow(ctx, phone)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Allowed: false, Reason: "too many OTP requests, try again later"}, nil
	}

	code, err := drawCode()
	if err != nil {
		return Result{}, err
	}
	if err := e.store.SetEX(ctx, kv.OTPKey(scope, phone), credentials.HashToken(code), kv.OTPTTL); err != nil {
		return Result{}, fmt.Errorf("store otp: %w", err)
	}

	sent := false
	if e.enabled && e.sender != nil {
		msg := fmt.Sprintf("%s is your AgriMandi verification code. Valid for 10 minutes.", code)
		if err := e.sender.Send(ctx, phone, msg); err != nil {
			e.logger.Warn("otp sms dispatch failed",
				zap.String("phone", phone),
				zap.String("scope", scope),
				zap.Error(err),
			)
		} else {
			sent = true
		}
	} else {
		e.logger.Info("otp generated (sms disabled)",
			zap.String("phone", phone),
			zap.String("scope", scope),
			zap.String("otp", code),
		)
	}

	return Result{Code: code, Sent: sent, Allowed: true}, nil
}

// Verify hashes the candidate and compares it to the stored hash. A match
// consumes the key; a mismatch leaves it in place. Rate-limit and lockout
// counters are untouched — the caller interprets the result in context.
func (e *Engine) Verify(ctx context.Context, scope, phone, code string) (bool, error) {
	stored, ok, err := e.store.Get(ctx, kv.OTPKey(scope, phone))
	if err != nil {
		return false, err
	}
	if !ok || stored != credentials.HashToken(code) {
		return false, nil
	}
	if _, _, err := e.store.GetDel(ctx, kv.OTPKey(scope, phone)); err != nil {
		return false, err
	}
	return true, nil
}

// drawCode returns a uniform 6-digit code in [100000, 999999].
func drawCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("draw otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
