// Package domainerrors provides the coded error type used across services.
//
// Services translate infrastructure sentinels (pkg/platform/sentinel) into
// coded errors at the service boundary; the HTTP layer maps codes to status
// lines without inspecting messages. Codes are stable API surface; messages
// are for humans and may change freely.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport mapping and caller branching.
type Code string

const (
	// CodeValidation marks bad caller input that is safe to retry after fixing.
	CodeValidation Code = "validation"

	// CodeInvalidInput marks malformed identifiers or payload fields.
	CodeInvalidInput Code = "invalid_input"

	// CodeInvariantViolation marks a broken domain invariant detected by a
	// model constructor or transition guard. Services usually re-map it.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeNotFound marks a missing resource.
	CodeNotFound Code = "not_found"

	// CodeNotYetActive marks an invitation that exists but has not been
	// activated by an order approval.
	CodeNotYetActive Code = "not_yet_active"

	// CodeExpired marks an invitation past its validity window.
	CodeExpired Code = "expired"

	// CodeInvalidTransition marks a state-machine violation. Not retryable;
	// it indicates an ordering bug upstream or a genuine double submission.
	CodeInvalidTransition Code = "invalid_transition"

	// CodeQuotaExceeded marks an exhausted capacity pool.
	CodeQuotaExceeded Code = "quota_exceeded"

	// CodeConflict marks an optimistic-concurrency collision. The calling
	// layer retries the whole operation; it is never surfaced to end users.
	CodeConflict Code = "conflict"

	// CodeUnauthorized marks missing or invalid credentials.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden marks an authenticated caller lacking permission.
	CodeForbidden Code = "forbidden"

	// CodeInternal marks unexpected failures. Descriptions are suppressed in
	// HTTP responses.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. It supports errors.Is/As via Unwrap.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Message returns the outermost coded message, or empty when uncoded.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// HTTPStatus maps a code to its HTTP status line. NotYetActive deliberately
// shares 404 with NotFound so a probing client cannot distinguish an unknown
// slug from a not-yet-approved one by status alone.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidInput, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeNotYetActive:
		return http.StatusNotFound
	case CodeExpired:
		return http.StatusGone
	case CodeInvalidTransition, CodeQuotaExceeded, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
