package service

import (
	"errors"
	"fmt"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/store"
)

// Sentinel errors returned by ConsultService.
var (
	// ErrNotFound covers both a missing record and one owned by another
	// user. Callers cannot tell the two apart.
	// API layer should map this to HTTP 404 Not Found.
	ErrNotFound = errors.New("work record not found")

	// ErrNotReady is matched by *NotReadyError.
	// API layer should map this to HTTP 400 Bad Request.
	ErrNotReady = errors.New("work record not completed")

	// ErrSchedulingFailed is wrapped when a record was saved but could not
	// be handed to the queue.
	ErrSchedulingFailed = errors.New("could not schedule processing")
)

// NotReadyError reports that a result was requested before completion.
type NotReadyError struct {
	Status domain.Status
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("analysis not completed: current status %s", e.Status)
}

// Is lets errors.Is(err, ErrNotReady) match.
func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// ConsultServiceError wraps unexpected failures with the failing operation.
type ConsultServiceError struct {
	// Operation is the operation that failed (e.g., "submit", "get_status")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ConsultServiceError.
func (e *ConsultServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("consult service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("consult service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ConsultServiceError) Unwrap() error {
	return e.Err
}

// NewConsultServiceError wraps err for operation. Known sentinels are
// returned directly so that callers keep matching them.
func NewConsultServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrNotFound) || store.IsNotFoundError(err) {
		return ErrNotFound
	}
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, ErrNotReady) {
		return err
	}

	return &ConsultServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
