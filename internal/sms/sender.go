// Package sms delivers transactional SMS messages.
package sms

import "context"

// Sender delivers a text message to a 10-digit Indian mobile number.
// Implementations must bound their own timeouts; callers treat most sends as
// best-effort.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}
