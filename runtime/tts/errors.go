package tts

import (
	"errors"
	"fmt"
)

// Common TTS errors.
var (
	// ErrInvalidVoice is returned when the requested voice is not available.
	ErrInvalidVoice = errors.New("invalid or unsupported voice")

	// ErrEmptyText is returned when attempting to synthesize empty text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrRateLimited is returned when API rate limits are exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnauthorized is returned when the provider rejects the credentials.
	ErrUnauthorized = errors.New("invalid API key")
)

// SynthesisError provides detailed error information from TTS providers.
type SynthesisError struct {
	// Provider is the TTS provider name.
	Provider string

	// Code is the provider-specific error code.
	Code string

	// Message is a human-readable error description.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Transient marks failures that might succeed if tried later.
	Transient bool
}

// NewSynthesisError creates a new SynthesisError.
func NewSynthesisError(provider, code, message string, cause error, transient bool) *SynthesisError {
	return &SynthesisError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Transient: transient,
	}
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s synthesis error [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s synthesis error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error {
	return e.Cause
}
