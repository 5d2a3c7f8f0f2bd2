package errors

import (
	"errors"
	"fmt"
)

// MirrorError is the structured error type for indexmirror.
type MirrorError struct {
	// Code is the unique error code (e.g., "ERR_301_SOURCE_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, State, Source, ...).
	Category Category

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if a later trigger may succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *MirrorError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MirrorError) Unwrap() error {
	return e.Cause
}

// Is matches MirrorErrors by code, enabling errors.Is.
func (e *MirrorError) Is(target error) bool {
	if t, ok := target.(*MirrorError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a MirrorError with the given code and message.
// Category and retryable flag are derived from the code.
func New(code string, message string, cause error) *MirrorError {
	return &MirrorError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a MirrorError from an existing error, keeping its message.
func Wrap(code string, err error) *MirrorError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// SourceError creates a provider-related error.
func SourceError(message string, cause error) *MirrorError {
	return New(ErrCodeSourceQuery, message, cause)
}

// IndexError creates an index-write error.
func IndexError(message string, cause error) *MirrorError {
	return New(ErrCodeIndexWrite, message, cause)
}

// StateError creates a watermark-persistence error.
func StateError(message string, cause error) *MirrorError {
	return New(ErrCodeStateWrite, message, cause)
}

// IsRetryable reports whether err is a MirrorError marked retryable.
func IsRetryable(err error) bool {
	var me *MirrorError
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// CodeOf returns the code of the first MirrorError in err's chain, or
// an empty string.
func CodeOf(err error) string {
	var me *MirrorError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
