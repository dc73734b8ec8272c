package sms

import (
	"context"

	"go.uber.org/zap"
)

// NoopSender logs messages to zap instead of delivering them.
// Use in development or when the gateway is not configured.
type NoopSender struct {
	logger *zap.Logger
}

// NewNoopSender creates a NoopSender backed by the given logger.
func NewNoopSender(logger *zap.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// Send logs the message and returns nil.
func (n *NoopSender) Send(_ context.Context, phone, message string) error {
	n.logger.Info("sms (noop — not sent)",
		zap.String("phone", phone),
		zap.String("message", message),
	)
	return nil
}
