package federation

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrUnknownDialect = errors.New("unknown dialect")
	ErrInvalidInput   = errors.New("invalid input")
)

// ValidationError is the rejection surfaced to inbox callers. It must be
// distinguishable from transport trouble, so it wraps ErrValidation.
type ValidationError struct {
	Entity string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("%s validation failed: %s", e.Entity, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validationErrorf(entity, format string, args ...any) *ValidationError {
	return &ValidationError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// FieldError reports a missing or mistyped field in a raw wire record.
type FieldError struct {
	Field string
	Want  string
	Got   any
}

func (e *FieldError) Error() string {
	if e.Got == nil {
		return fmt.Sprintf("field %q missing (want %s)", e.Field, e.Want)
	}
	return fmt.Sprintf("field %q has type %T (want %s)", e.Field, e.Got, e.Want)
}

// HTTPError carries a non-success status from a remote node.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Logger is the minimal logging surface the federation core needs. A nil
// Logger is silence.
type Logger interface {
	Printf(format string, args ...any)
}

func logf(logger Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
