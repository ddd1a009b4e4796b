package optimization

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrDimensionMismatch is wrapped when a candidate does not have the
	// dimensionality of the run it belongs to.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	prefix := e.Component
	switch {
	case e.Component != "" && e.Op != "":
		prefix = e.Component + "." + e.Op
	case e.Op != "":
		prefix = e.Op
	}

	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if prefix == "" {
		return msg
	}
	return prefix + ": " + msg
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewErrorf creates a new optimization error with formatted message.
func NewErrorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// InvalidConfig builds a validation error for the given component and
// operation, wrapping ErrInvalidConfig.
func InvalidConfig(component, op, format string, args ...interface{}) *Error {
	return WrapErrorf(ErrInvalidConfig, format, args...).
		WithComponent(component).
		WithOperation(op)
}

// DimensionMismatch builds an error for a candidate of the wrong length,
// wrapping ErrDimensionMismatch.
func DimensionMismatch(component, op string, got, want int) *Error {
	return WrapErrorf(ErrDimensionMismatch, "candidate has %d dimensions, want %d", got, want).
		WithComponent(component).
		WithOperation(op)
}

// IsOptimizationError checks if an error chain contains an Error.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
