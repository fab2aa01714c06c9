package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Phase marks which lifecycle transition an activity entry records.
type Phase string

// Activity phases
const (
	PhaseStarted   Phase = "started"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseStarted, PhaseCompleted, PhaseFailed:
		return true
	default:
		return false
	}
}

// Activity actions written into entry metadata under the "action" key.
const (
	ActionSubmitted           = "submitted"
	ActionProcessingStarted   = "processing_started"
	ActionProcessingCompleted = "processing_completed"
	ActionProcessingFailed    = "processing_failed"
	ActionSchedulingFailed    = "scheduling_failed"
)

// ActivityLogEntry is an insert-only audit row for one lifecycle transition.
// WorkRecordID is a lookup reference only.
type ActivityLogEntry struct {
	ID           string         `json:"id"`
	WorkRecordID uuid.UUID      `json:"work_record_id"`
	Phase        Phase          `json:"phase"`
	Metadata     map[string]any `json:"metadata"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewActivityLogEntry builds an entry with a ULID so entries sort by creation time.
func NewActivityLogEntry(recordID uuid.UUID, phase Phase, metadata map[string]any) (*ActivityLogEntry, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	entry := &ActivityLogEntry{
		ID:           ulid.Make().String(),
		WorkRecordID: recordID,
		Phase:        phase,
		Metadata:     metadata,
		Timestamp:    time.Now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Validate checks that the entry can be persisted.
func (e *ActivityLogEntry) Validate() error {
	if e.ID == "" || e.WorkRecordID == uuid.Nil {
		return ErrInvalidID
	}
	if !e.Phase.Valid() {
		return ErrInvalidPhase
	}
	return nil
}
