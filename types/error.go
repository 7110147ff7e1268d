package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Build error codes. Build failures are non-fatal: the executor reports
// them once and stays available.
const (
	ErrMalformedTaskDefinition ErrorCode = "MALFORMED_TASK_DEFINITION"
	ErrMissingCapability       ErrorCode = "MISSING_CAPABILITY"
)

// Transport error codes.
const (
	ErrMalformedMessage   ErrorCode = "MALFORMED_MESSAGE"
	ErrChannelUnreachable ErrorCode = "CHANNEL_UNREACHABLE"
	ErrBusClosed          ErrorCode = "BUS_CLOSED"
)

// Coordination error codes.
const (
	ErrAgentBusy       ErrorCode = "AGENT_BUSY"
	ErrStaleAssignment ErrorCode = "STALE_ASSIGNMENT"
	ErrNotStarted      ErrorCode = "NOT_STARTED"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed. Returns
// an empty code when err carries no *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
