package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Status represents the lifecycle state of a work record.
type Status string

// Possible work record status values
const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is completed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind identifies which agent a work record is bound to.
type Kind string

// Known work kinds
const (
	KindTranscriptAnalysis Kind = "transcript_analysis"
	KindCompetitorAnalysis Kind = "competitor_analysis"
	KindContentGeneration  Kind = "content_generation"
)

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindTranscriptAnalysis, KindCompetitorAnalysis, KindContentGeneration}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTranscriptAnalysis, KindCompetitorAnalysis, KindContentGeneration:
		return true
	default:
		return false
	}
}

// WorkRecord tracks one submitted unit of asynchronous work and its outcome.
//
// Exactly one of the following holds at any time: Output is set and the
// status is completed, ErrorDetail is set and the status is failed, or the
// status is non-terminal and neither is set.
type WorkRecord struct {
	ID           uuid.UUID       `json:"id"`
	OwnerID      uuid.UUID       `json:"owner_id"`
	Kind         Kind            `json:"kind"`
	TaskHandle   string          `json:"task_handle"`
	Input        json.RawMessage `json:"input_payload"`
	Status       Status          `json:"status"`
	Output       json.RawMessage `json:"output_payload,omitempty"`
	ErrorDetail  string          `json:"error_detail,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewTaskHandle returns a fresh, time-sortable queue handle.
func NewTaskHandle() string {
	return ulid.Make().String()
}

// NewWorkRecord validates in and builds a record in the created state.
func NewWorkRecord(ownerID uuid.UUID, in Input, taskHandle string) (*WorkRecord, error) {
	if ownerID == uuid.Nil {
		return nil, NewValidationError("owner_id", "must not be empty")
	}
	if in == nil {
		return nil, NewValidationError("input_payload", "must not be empty")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%w: encode input: %v", ErrValidation, err)
	}

	now := time.Now().UTC()
	rec := &WorkRecord{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Kind:       in.Kind(),
		TaskHandle: taskHandle,
		Input:      payload,
		Status:     StatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks identity fields and the status/outcome invariant.
func (r *WorkRecord) Validate() error {
	if r.ID == uuid.Nil || r.OwnerID == uuid.Nil {
		return ErrInvalidID
	}
	if !r.Kind.Valid() {
		return ErrInvalidKind
	}
	if r.TaskHandle == "" {
		return NewValidationError("task_handle", "must not be empty")
	}
	if len(r.Input) == 0 {
		return NewValidationError("input_payload", "must not be empty")
	}
	if !r.Status.Valid() {
		return ErrInvalidStatus
	}
	if r.AttemptCount < 0 {
		return NewValidationError("attempt_count", "must not be negative")
	}

	hasOutput := len(r.Output) > 0
	hasError := r.ErrorDetail != ""
	switch r.Status {
	case StatusCompleted:
		if !hasOutput || hasError {
			return ErrOutcomeMismatch
		}
	case StatusFailed:
		if !hasError || hasOutput {
			return ErrOutcomeMismatch
		}
	default:
		if hasOutput || hasError {
			return ErrOutcomeMismatch
		}
	}
	return nil
}

// AcceptsAttempt reports whether a delivery carrying the given attempt number
// should run. A completed record never runs again; a failed record only runs
// for a retry newer than every attempt it has already seen.
func (r *WorkRecord) AcceptsAttempt(attempt int) bool {
	switch r.Status {
	case StatusCompleted:
		return false
	case StatusFailed:
		return attempt > r.AttemptCount
	default:
		return true
	}
}

// BeginAttempt moves the record into processing for the given attempt.
func (r *WorkRecord) BeginAttempt(attempt int, now time.Time) error {
	if attempt < 1 {
		return NewValidationError("attempt", "must be at least 1")
	}
	if !r.AcceptsAttempt(attempt) {
		return fmt.Errorf("%w: %s -> %s (attempt %d)", ErrInvalidTransition, r.Status, StatusProcessing, attempt)
	}

	r.Status = StatusProcessing
	r.ErrorDetail = ""
	if attempt > r.AttemptCount {
		r.AttemptCount = attempt
	}
	r.UpdatedAt = now.UTC()
	return nil
}

// Complete records a successful outcome. Output must be a JSON object.
func (r *WorkRecord) Complete(output json.RawMessage, now time.Time) error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusCompleted)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(output, &probe); err != nil || probe == nil {
		return NewValidationError("output_payload", "must be a JSON object")
	}

	r.Status = StatusCompleted
	r.Output = output
	r.ErrorDetail = ""
	r.UpdatedAt = now.UTC()
	return nil
}

// Fail records a failed outcome. Records still in created may only fail when
// the work could not be handed to the queue.
func (r *WorkRecord) Fail(detail string, now time.Time) error {
	if r.Status != StatusProcessing && r.Status != StatusCreated {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusFailed)
	}
	if detail == "" {
		return NewValidationError("error_detail", "must not be empty")
	}

	r.Status = StatusFailed
	r.ErrorDetail = detail
	r.Output = nil
	r.UpdatedAt = now.UTC()
	return nil
}

// DecodeInput unmarshals the stored input payload into v.
func (r *WorkRecord) DecodeInput(v any) error {
	if err := json.Unmarshal(r.Input, v); err != nil {
		return fmt.Errorf("decode %s input for record %s: %w", r.Kind, r.ID, err)
	}
	return nil
}
