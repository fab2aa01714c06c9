// Package domain defines the core business entities and errors.
package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity or submitted input fails validation.
	// It is usually wrapped by a *ValidationError naming the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or empty.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidStatus is returned when a work record status is not one of the known values.
	ErrInvalidStatus = errors.New("invalid work record status")

	// ErrInvalidKind is returned when a work kind is not one of the known values.
	ErrInvalidKind = errors.New("invalid work kind")

	// ErrInvalidPhase is returned when an activity phase is not one of the known values.
	ErrInvalidPhase = errors.New("invalid activity phase")

	// ErrInvalidTransition is returned when a status change is not permitted
	// by the work record lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrOutcomeMismatch is returned when output/error fields disagree with the status.
	ErrOutcomeMismatch = errors.New("record outcome does not match status")
)

// ValidationError describes why a field of submitted input was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Unwrap lets callers match any ValidationError with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
