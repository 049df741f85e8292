package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is wrapped by the entity specific not-found errors.
	ErrNotFound = errors.New("not found")

	ErrAlertNotFound    = fmt.Errorf("alert %w", ErrNotFound)
	ErrIncidentNotFound = fmt.Errorf("incident %w", ErrNotFound)
	ErrTemplateNotFound = fmt.Errorf("template %w", ErrNotFound)

	// ErrImmutableSentAlert is returned when a patch touches content of a sent alert.
	ErrImmutableSentAlert = errors.New("sent alerts cannot be modified")
	// ErrCancellationWindowExpired is returned when an alert is not sent or is older
	// than the cancel window.
	ErrCancellationWindowExpired = errors.New("cancellation window has expired")
	// ErrInvalidState is returned when the current status does not allow the operation.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrDuplicateAcknowledgment is returned when a user acknowledges an alert twice.
	ErrDuplicateAcknowledgment = errors.New("alert already acknowledged by user")
	// ErrPersistence wraps storage failures; the operation was aborted.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError reports malformed input with per-field detail.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
