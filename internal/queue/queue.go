// Package queue defines the task queue boundary: at-least-once delivery of
// jobs to a handler, a fixed-delay retry policy, and per-handle state for the
// debug surface. Backends live in subpackages.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/google/uuid"
)

// Common queue errors.
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
	ErrNoHandler   = errors.New("no handler registered")

	// ErrDuplicateHandle is returned when a handle is enqueued twice.
	ErrDuplicateHandle = errors.New("task handle already enqueued")
)

// Job is the payload carried by every queued task.
type Job struct {
	Kind     domain.Kind `json:"kind"`
	RecordID uuid.UUID   `json:"record_id"`
}

// Validate checks that the job can be dispatched.
func (j Job) Validate() error {
	if !j.Kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidKind, j.Kind)
	}
	if j.RecordID == uuid.Nil {
		return domain.ErrInvalidID
	}
	return nil
}

// TaskType is the name backends register the job under.
func (j Job) TaskType() string {
	return "consult:" + string(j.Kind)
}

// State is the queue's own view of a handle.
type State string

// Handle states reported by Inspector.
const (
	StatePending  State = "PENDING"
	StateProgress State = "PROGRESS"
	StateSuccess  State = "SUCCESS"
	StateFailure  State = "FAILURE"
)

// Message returns the human readable description shown on the debug surface.
func (s State) Message() string {
	switch s {
	case StateProgress:
		return "Task is being processed"
	case StateSuccess:
		return "Task completed successfully"
	case StateFailure:
		return "Task failed"
	default:
		return "Task is waiting to be processed"
	}
}

// HandleStatus describes one handle as the queue sees it.
type HandleStatus struct {
	Handle  string `json:"task_id"`
	State   State  `json:"state"`
	Attempt int    `json:"attempt,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// UnknownHandle is reported for handles the queue has never seen or has
// already forgotten.
func UnknownHandle(handle string) HandleStatus {
	return HandleStatus{Handle: handle, State: StatePending, Message: StatePending.Message()}
}

// RetryPolicy is a fixed-delay, bounded-attempt redelivery policy.
type RetryPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy waits 60 seconds between at most 3 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delay: 60 * time.Second, MaxAttempts: 3}
}

// ShouldRetry reports whether a failed attempt gets another delivery.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	return err != nil && !IsPermanent(err) && attempt < p.MaxAttempts
}

// HandlerFunc processes one delivery. attempt starts at 1.
type HandlerFunc func(ctx context.Context, job Job, attempt int) error

// Enqueuer submits jobs under a caller-chosen handle.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job, handle string) error
}

// Inspector reports the queue-side state of a handle.
type Inspector interface {
	State(ctx context.Context, handle string) (HandleStatus, error)
}

// Consumer delivers jobs to h until ctx is cancelled.
type Consumer interface {
	Run(ctx context.Context, h HandlerFunc) error
}

// Queue is a complete backend.
type Queue interface {
	Enqueuer
	Inspector
	Consumer
	Close() error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
