package brain

import (
	"errors"
	"fmt"
)

// Error categories. Callers classify failures with errors.Is.
var (
	// ErrValidation marks a malformed request. Nothing was changed.
	ErrValidation = errors.New("brain: invalid request")

	// ErrNotFound marks a lookup of an unknown session.
	ErrNotFound = errors.New("brain: session not found")

	// ErrUpstreamUnavailable marks a memory store or model that could not
	// be reached in time. ProcessSpeech absorbs it into a degraded reply.
	ErrUpstreamUnavailable = errors.New("brain: upstream unavailable")

	// ErrParse marks model output that could not be decoded. ProcessSpeech
	// absorbs it into a degraded reply.
	ErrParse = errors.New("brain: unparseable model output")

	// ErrInternal marks any other fault. Its details are for logs only.
	ErrInternal = errors.New("brain: internal error")
)

// ValidationError names the offending request field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Unwrap makes every ValidationError match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}
