// Package errkind defines the closed set of error kinds surfaced across the
// runtime, so callers can branch on Kind instead of string-matching messages.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories named in the runtime's error design.
type Kind string

const (
	InvalidInput           Kind = "invalid_input"
	NotFound               Kind = "not_found"
	Ambiguous              Kind = "ambiguous"
	StorageIO              Kind = "storage_io"
	OperatorDisabled       Kind = "operator_disabled"
	OperatorActionDisallow Kind = "operator_action_disallowed"
	OperatorInvalidOutput  Kind = "operator_invalid_output"
	ContextMissing         Kind = "context_missing"
	ContextAmbiguous       Kind = "context_ambiguous"
	ContextUnauthorized    Kind = "context_unauthorized"
	CLIValidationFailed    Kind = "cli_validation_failed"
	ServerUnreachable      Kind = "server_unreachable"
	RequestTimeout         Kind = "request_timeout"
	RequestRejected        Kind = "request_rejected"
	BackendError           Kind = "backend_error"
	BackendTimeout         Kind = "backend_timeout"
)

// Error is the concrete error type carrying a Kind, a one-line message, and
// an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
