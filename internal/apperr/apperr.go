// Package apperr defines the closed error taxonomy shared by all domain
// services and translated by the HTTP façade. Every failure a caller can see
// carries a machine code, a canonical status code, and a human message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
)

// Code is the machine-readable error code carried in error payloads.
type Code string

const (
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
	CodeWeakPassword           Code = "WEAK_PASSWORD"
	CodeInvalidOTP             Code = "INVALID_OTP"
	CodeInvalidPIN             Code = "INVALID_PIN"
	CodePINExpired             Code = "PIN_EXPIRED"
	CodeAccountLocked          Code = "ACCOUNT_LOCKED"
	CodePhoneNotRegistered     Code = "PHONE_NOT_REGISTERED"
	CodeEmailExists            Code = "EMAIL_EXISTS"
	CodePhoneExists            Code = "PHONE_EXISTS"
	CodeDuplicateVehicleNumber Code = "DUPLICATE_VEHICLE_NUMBER"
	CodeDuplicateEmail         Code = "DUPLICATE_EMAIL"
	CodeInvitationExpired      Code = "INVITATION_EXPIRED"
	CodeTokenExpired           Code = "TOKEN_EXPIRED"
	CodeAlreadyAccepted        Code = "ALREADY_ACCEPTED"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeLastAdmin              Code = "LAST_ADMIN"
	CodeSelfAction             Code = "SELF_ACTION"
	CodeRateExceeded           Code = "RATE_EXCEEDED"
	CodeRegistrationNotFound   Code = "REGISTRATION_NOT_FOUND"
	CodeInvalidUPI             Code = "INVALID_UPI"
	CodeInvalidState           Code = "INVALID_STATE"
	CodeNotFound               Code = "NOT_FOUND"
	CodeInternal               Code = "INTERNAL"
)

// Error is the typed failure raised by validators and domain services.
type Error struct {
	Code    Code
	Status  codes.Code
	Message string

	// RemainingAttempts is set on failed OTP/PIN verifications.
	RemainingAttempts *int
	// LockedUntil is set when a lockout is active.
	LockedUntil *time.Time
	// Rules lists the failed password-policy rules for WEAK_PASSWORD.
	Rules []string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithAttempts attaches a remaining-attempts counter.
func (e *Error) WithAttempts(n int) *Error {
	e.RemainingAttempts = &n
	return e
}

// WithLockedUntil attaches the lockout deadline.
func (e *Error) WithLockedUntil(t time.Time) *Error {
	e.LockedUntil = &t
	return e
}

// WithRules attaches the failed password-policy rules.
func (e *Error) WithRules(rules []string) *Error {
	e.Rules = rules
	return e
}

// New builds an Error with the canonical status implied by the code.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Status: statusFor(code), Message: msg}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap builds an INTERNAL error around an unexpected fault.
func Wrap(msg string, err error) *Error {
	return &Error{Code: CodeInternal, Status: codes.Internal, Message: msg, cause: err}
}

// As extracts an *Error from an error chain, or wraps it as INTERNAL.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Wrap("internal error", err)
}

// statusFor maps machine codes to their canonical status codes.
func statusFor(code Code) codes.Code {
	switch code {
	case CodeInvalidArgument, CodeWeakPassword, CodeSelfAction, CodeInvalidUPI:
		return codes.InvalidArgument
	case CodeInvalidOTP, CodeInvalidPIN:
		return codes.Unauthenticated
	case CodePINExpired, CodeInvitationExpired, CodeTokenExpired, CodeAlreadyAccepted,
		CodeLastAdmin, CodeInvalidState:
		return codes.FailedPrecondition
	case CodeAccountLocked, CodeUnauthorized:
		return codes.PermissionDenied
	case CodePhoneNotRegistered, CodeRegistrationNotFound, CodeNotFound:
		return codes.NotFound
	case CodeEmailExists, CodePhoneExists, CodeDuplicateVehicleNumber, CodeDuplicateEmail:
		return codes.AlreadyExists
	case CodeRateExceeded:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// HTTPStatus maps a canonical status code to the HTTP status used on the wire.
func HTTPStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
