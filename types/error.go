package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the runtime.
type ErrorCode string

// Storage error codes
const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrDuplicate      ErrorCode = "DUPLICATE"
	ErrStorage        ErrorCode = "STORAGE_ERROR"
	ErrCircuitOpen    ErrorCode = "CIRCUIT_OPEN"
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// Runtime error codes
const (
	ErrProviderNotSet   ErrorCode = "PROVIDER_NOT_SET"
	ErrEmbeddingFailed  ErrorCode = "EMBEDDING_FAILED"
	ErrGenerationFailed ErrorCode = "GENERATION_FAILED"
	ErrActionFailed     ErrorCode = "ACTION_FAILED"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
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

// WrapError wraps cause with a code. A nil cause yields nil.
func WrapError(cause error, code ErrorCode, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error anywhere in the chain is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the first error code found in the chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
