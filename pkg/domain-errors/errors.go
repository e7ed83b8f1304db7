// Package domainerrors defines the coded error type services return to
// transports. Stores return pkg/platform/sentinel errors; services translate
// them into a Code here so handlers can map them to responses without knowing
// anything about the failing layer.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeBadRequest            Code = "bad_request"
	CodeInvalidInput          Code = "invalid_input"
	CodeValidation            Code = "validation_error"
	CodeUnauthorized          Code = "unauthorized"
	CodeForbidden             Code = "forbidden"
	CodeNotFound              Code = "not_found"
	CodeConflict              Code = "conflict"
	CodeAlreadyInactive       Code = "already_inactive"
	CodeInvalidTierTransition Code = "invalid_tier_transition"
	CodeInvalidCoupon         Code = "invalid_coupon"
	CodeInsufficientFunds     Code = "insufficient_funds"
	CodeLimitExceeded         Code = "limit_exceeded"
	CodeOTPExpired            Code = "otp_expired"
	CodeOTPInvalid            Code = "otp_invalid"
	CodeOTPAlreadyConsumed    Code = "otp_already_consumed"
	CodeOTPPayloadMismatch    Code = "otp_payload_mismatch"
	CodeRateLimited           Code = "rate_limited"
	CodeInvariantViolation    Code = "invariant_violation"
	CodeUnavailable           Code = "unavailable"
	CodeTimeout               Code = "timeout"
	CodeInternal              Code = "internal_error"
)

// Error is a domain error with a stable code and a caller-safe message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the outermost domain error in the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	de, ok := As(err)
	return ok && de.Code == code
}

// IsConflictClass reports whether the code signals a repeated or concurrent
// mutation of an entity that has already left the state the caller expected.
func (c Code) IsConflictClass() bool {
	switch c {
	case CodeConflict, CodeAlreadyInactive, CodeOTPAlreadyConsumed:
		return true
	}
	return false
}
