// Package domainerrors carries the coded error taxonomy shared by services and
// transport. Services return these; handlers map codes to HTTP statuses.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, client-visible error category.
type Code string

const (
	CodeBadRequest     Code = "bad_request"
	CodeValidation     Code = "validation_error"
	CodeInvalidInput   Code = "invalid_input"
	CodeUnauthorized   Code = "unauthorized"
	CodeForbidden      Code = "forbidden"
	CodeNotFound       Code = "not_found"
	CodeConflict       Code = "conflict"
	CodeUnavailable    Code = "unavailable"
	CodeInvalidCode    Code = "invalid_code"
	CodeClaimExpired   Code = "claim_expired"
	CodeNotCancellable Code = "not_cancellable"
	CodeUpstream       Code = "upstream_failure"
	CodeTooMany        Code = "too_many_attempts"
	CodeTimeout        Code = "timeout"
	CodeInternal       Code = "internal_error"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports equality on code and message so tests can compare against a
// freshly constructed error with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// As extracts the outermost domain error from the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// IsStateConflict reports whether err is an expected state-machine outcome
// rather than an infrastructure failure.
func IsStateConflict(err error) bool {
	de, ok := As(err)
	if !ok {
		return false
	}
	switch de.Code {
	case CodeConflict, CodeUnavailable, CodeInvalidCode, CodeClaimExpired, CodeNotCancellable:
		return true
	}
	return false
}
