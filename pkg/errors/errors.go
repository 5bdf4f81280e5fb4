// Package errors provides the structured error type shared by the session
// components.
//
// ContextualError records which component failed, during which operation,
// and optionally a status code and details. It implements Unwrap so callers
// keep using errors.Is and errors.As on the cause.
//
// Usage:
//
//	err := errors.New("agent", "Invoke", someErr)
//	err = err.WithStatusCode(429).WithDetails(map[string]any{"model": "gpt-4o"})
package errors

import (
	stderrors "errors"
	"fmt"
)

// ContextualError is a structured error carrying where and why it happened.
type ContextualError struct {
	// Component identifies the package that produced the error (e.g. "agent", "session").
	Component string

	// Operation describes what was being done when the error occurred.
	Operation string

	// StatusCode is an optional HTTP or application-level status code.
	StatusCode int

	// Details holds optional structured metadata about the error.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// New creates a ContextualError with the given component, operation, and cause.
func New(component, operation string, cause error) *ContextualError {
	return &ContextualError{
		Component: component,
		Operation: operation,
		Cause:     cause,
	}
}

// Error returns a human-readable representation of the error.
func (e *ContextualError) Error() string {
	base := fmt.Sprintf("[%s] %s", e.Component, e.Operation)

	if e.StatusCode != 0 {
		base += fmt.Sprintf(" (status %d)", e.StatusCode)
	}

	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}

	return base
}

// Unwrap returns the underlying cause.
func (e *ContextualError) Unwrap() error {
	return e.Cause
}

// WithStatusCode sets the status code and returns e.
func (e *ContextualError) WithStatusCode(code int) *ContextualError {
	e.StatusCode = code
	return e
}

// WithDetails sets the details map and returns e.
func (e *ContextualError) WithDetails(details map[string]any) *ContextualError {
	e.Details = details
	return e
}

// ComponentOf returns the component of the outermost ContextualError in
// err's chain, or "" if there is none.
func ComponentOf(err error) string {
	var ce *ContextualError
	if stderrors.As(err, &ce) {
		return ce.Component
	}
	return ""
}
