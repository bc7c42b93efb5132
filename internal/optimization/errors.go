package optimization

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying optimization failures. An *Error carries one of
// these in its Err field so callers can test the class with errors.Is.
var (
	// ErrConfiguration marks invalid run parameters. It is the only fatal class.
	ErrConfiguration = errors.New("configuration error")
	// ErrEvaluationFailure marks an objective that failed, panicked, or
	// returned a non-finite or sentinel value.
	ErrEvaluationFailure = errors.New("evaluation failure")
	// ErrWorkerTimeout marks an evaluation that exceeded its time budget.
	ErrWorkerTimeout = errors.New("worker timeout")
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
	var prefix string
	switch {
	case e.Component != "" && e.Op != "":
		prefix = e.Component + ": " + e.Op
	case e.Component != "":
		prefix = e.Component
	case e.Op != "":
		prefix = e.Op
	}

	msg := e.Message
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
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

// NewError creates a new optimization error with the given message.
func NewError(message string) *Error {
	return &Error{Message: message}
}

// NewErrorf creates a new optimization error with formatted message.
func NewErrorf(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// NewConfigError creates a configuration error for the given component and
// operation. The result matches ErrConfiguration under errors.Is.
func NewConfigError(component, op, format string, args ...interface{}) *Error {
	return &Error{
		Message:   fmt.Sprintf(format, args...),
		Op:        op,
		Component: component,
		Err:       ErrConfiguration,
	}
}

// WrapError wraps an existing error with additional context.
// If err is nil, WrapError returns nil.
func WrapError(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Message: message, Err: err}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Message: fmt.Sprintf(format, args...), Err: err}
}

// IsOptimizationError reports whether err is, or wraps, an *Error and
// returns the outermost one.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsConfigurationError reports whether err belongs to the configuration class.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
