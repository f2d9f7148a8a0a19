// Package apperrors defines the error taxonomy shared by services and handlers.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrStageCompleted     = errors.New("pipeline stage already completed")
	ErrInvalidTransition  = errors.New("invalid stage transition")
	ErrRegenerationLimit  = errors.New("regeneration limit reached")
	ErrNotionNotConnected = errors.New("notion workspace not connected")
)

// ValidationError carries field-level detail for malformed requests.
// Handlers surface it as a 400 with the field name in the response body.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidation creates a ValidationError for the given field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// BackendError wraps a generation-backend or third-party API failure.
// The upstream message is logged but never surfaced to the caller verbatim;
// UserMessage, when set, is safe to show (e.g. "audio transcription error").
type BackendError struct {
	Backend     string
	UserMessage string
	Cause       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Backend, e.Cause)
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}

// NewBackend wraps a backend failure with a user-facing message.
func NewBackend(backend, userMessage string, cause error) *BackendError {
	return &BackendError{Backend: backend, UserMessage: userMessage, Cause: cause}
}

// IsBackend reports whether err is (or wraps) a BackendError, returning it.
func IsBackend(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
