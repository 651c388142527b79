// Package domainerrors defines coded errors for business-rule failures.
//
// Stores and infrastructure return sentinel errors (pkg/platform/sentinel);
// services translate those facts into coded domain errors that transports
// can map to wire responses without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for programmatic handling.
type Code string

const (
	// CodeInvalidInput marks a command payload that fails structural
	// validation (missing title, malformed id, unknown kind).
	CodeInvalidInput Code = "invalid_input"

	// CodeInvariantViolation marks a command that is well-formed but
	// illegal in the aggregate's current state.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeConflict marks an optimistic-concurrency failure. The caller
	// must re-read the aggregate and resubmit; the engine never merges.
	CodeConflict Code = "conflict"

	// CodeNotFound marks a reference to an aggregate that does not exist.
	CodeNotFound Code = "not_found"

	// CodeUnauthorized marks a request without a usable identity. The
	// engine treats identity as opaque input; only the transport uses this.
	CodeUnauthorized Code = "unauthorized"

	// CodeUnavailable marks a transient infrastructure failure that
	// exhausted its retry budget.
	CodeUnavailable Code = "unavailable"

	// CodeInternal marks everything else. Seeing this code in logs is a
	// bug report.
	CodeInternal Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
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

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
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
