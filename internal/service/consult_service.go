package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/platform/logger"
	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/defineconsult/consult-api/internal/redact"
	"github.com/defineconsult/consult-api/internal/store"
	"github.com/google/uuid"
)

// Queue is the part of the task queue the service needs.
type Queue interface {
	queue.Enqueuer
	queue.Inspector
}

// Submission is returned by Submit.
type Submission struct {
	RecordID   uuid.UUID `json:"record_id"`
	TaskHandle string    `json:"task_handle"`
}

// StatusView describes a record without its payloads.
type StatusView struct {
	RecordID     uuid.UUID     `json:"record_id"`
	Kind         domain.Kind   `json:"kind"`
	Status       domain.Status `json:"status"`
	TaskHandle   string        `json:"task_handle"`
	AttemptCount int           `json:"attempt_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ErrorDetail  string        `json:"error_detail,omitempty"`
}

// ResultView carries a completed record's output.
type ResultView struct {
	RecordID uuid.UUID       `json:"record_id"`
	Status   domain.Status   `json:"status"`
	Output   json.RawMessage `json:"output_payload"`
}

// ListQuery selects a page of the caller's records.
type ListQuery struct {
	Kind   domain.Kind
	Limit  int
	Offset int
}

// ConsultService is the status API of the consult engine.
type ConsultService interface {
	// Submit validates in, records it and schedules it. It never waits for processing.
	Submit(ctx context.Context, ownerID uuid.UUID, in domain.Input) (*Submission, error)

	// GetStatus returns ErrNotFound for missing and foreign records alike.
	GetStatus(ctx context.Context, recordID, ownerID uuid.UUID) (*StatusView, error)

	// GetResult returns a *NotReadyError unless the record is completed.
	GetResult(ctx context.Context, recordID, ownerID uuid.UUID) (*ResultView, error)

	// List returns the owner's records, newest first.
	List(ctx context.Context, ownerID uuid.UUID, q ListQuery) ([]StatusView, error)

	// Activity returns the log of an owned record, oldest first.
	Activity(ctx context.Context, recordID, ownerID uuid.UUID) ([]*domain.ActivityLogEntry, error)

	// TaskState reports the queue's view of a handle bound to an owned record.
	TaskState(ctx context.Context, handle string, ownerID uuid.UUID) (queue.HandleStatus, error)
}

type consultService struct {
	db       *sql.DB
	records  store.WorkRecordStore
	activity store.ActivityLogStore
	queue    Queue
	logger   *slog.Logger
	now      func() time.Time
}

// NewConsultService creates a ConsultService.
// It returns an error if any of the required dependencies are nil.
func NewConsultService(
	db *sql.DB,
	records store.WorkRecordStore,
	activity store.ActivityLogStore,
	q Queue,
	log *slog.Logger,
) (ConsultService, error) {
	switch {
	case db == nil:
		return nil, &ConsultServiceError{Operation: "create_service", Message: "db cannot be nil"}
	case records == nil:
		return nil, &ConsultServiceError{Operation: "create_service", Message: "records cannot be nil"}
	case activity == nil:
		return nil, &ConsultServiceError{Operation: "create_service", Message: "activity cannot be nil"}
	case q == nil:
		return nil, &ConsultServiceError{Operation: "create_service", Message: "queue cannot be nil"}
	}
	if log == nil {
		log = slog.Default()
	}

	return &consultService{
		db:       db,
		records:  records,
		activity: activity,
		queue:    q,
		logger:   log.With(slog.String("component", "consult_service")),
		now:      time.Now,
	}, nil
}

func (s *consultService) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOrDefault(ctx, s.logger)
}

func (s *consultService) Submit(ctx context.Context, ownerID uuid.UUID, in domain.Input) (*Submission, error) {
	log := s.log(ctx)

	rec, err := domain.NewWorkRecord(ownerID, in, domain.NewTaskHandle())
	if err != nil {
		log.DebugContext(ctx, "submission rejected", slog.String("error", err.Error()))
		return nil, NewConsultServiceError("submit", "invalid submission", err)
	}

	entry, err := domain.NewActivityLogEntry(rec.ID, domain.PhaseStarted, map[string]any{
		"action":     domain.ActionSubmitted,
		"kind":       string(rec.Kind),
		"input_size": in.Size(),
		"owner_id":   ownerID.String(),
		"record_id":  rec.ID.String(),
	})
	if err != nil {
		return nil, NewConsultServiceError("submit", "failed to build activity entry", err)
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.records.WithTx(tx).Create(ctx, rec); err != nil {
			return err
		}
		return s.activity.WithTx(tx).Append(ctx, entry)
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to save work record",
			slog.String("error", redact.Error(err)),
			slog.String("kind", string(rec.Kind)))
		return nil, NewConsultServiceError("submit", "failed to save work record", err)
	}

	log = log.With(
		slog.String("record_id", rec.ID.String()),
		slog.String("task_handle", rec.TaskHandle),
		slog.String("kind", string(rec.Kind)))

	job := queue.Job{Kind: rec.Kind, RecordID: rec.ID}
	if err := s.queue.Enqueue(ctx, job, rec.TaskHandle); err != nil {
		log.ErrorContext(ctx, "failed to enqueue work record", slog.String("error", redact.Error(err)))
		s.markUnscheduled(context.WithoutCancel(ctx), log, rec, err)
		return nil, NewConsultServiceError("submit", ErrSchedulingFailed.Error(), errors.Join(ErrSchedulingFailed, err))
	}

	log.InfoContext(ctx, "work record submitted", slog.Int("input_size", in.Size()))
	return &Submission{RecordID: rec.ID, TaskHandle: rec.TaskHandle}, nil
}

// markUnscheduled fails a record whose job never reached the queue so it
// does not sit in created forever.
func (s *consultService) markUnscheduled(ctx context.Context, log *slog.Logger, rec *domain.WorkRecord, cause error) {
	if err := rec.Fail(ErrSchedulingFailed.Error(), s.now()); err != nil {
		log.ErrorContext(ctx, "cannot fail unscheduled record", slog.String("error", err.Error()))
		return
	}
	entry, err := domain.NewActivityLogEntry(rec.ID, domain.PhaseFailed, map[string]any{
		"action": domain.ActionSchedulingFailed,
		"kind":   string(rec.Kind),
		"error":  redact.Error(cause),
	})
	if err != nil {
		log.ErrorContext(ctx, "cannot build scheduling failure entry", slog.String("error", err.Error()))
		return
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.records.WithTx(tx).UpdateStatusFields(ctx, rec, domain.StatusCreated); err != nil {
			return err
		}
		return s.activity.WithTx(tx).Append(ctx, entry)
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to mark record unscheduled", slog.String("error", redact.Error(err)))
	}
}

func (s *consultService) owned(ctx context.Context, op string, recordID, ownerID uuid.UUID) (*domain.WorkRecord, error) {
	rec, err := s.records.GetByIDAndOwner(ctx, recordID, ownerID)
	if err != nil {
		if !store.IsNotFoundError(err) {
			s.log(ctx).ErrorContext(ctx, "failed to load work record",
				slog.String("operation", op),
				slog.String("record_id", recordID.String()),
				slog.String("error", redact.Error(err)))
		}
		return nil, NewConsultServiceError(op, "failed to load work record", err)
	}
	return rec, nil
}

func (s *consultService) GetStatus(ctx context.Context, recordID, ownerID uuid.UUID) (*StatusView, error) {
	rec, err := s.owned(ctx, "get_status", recordID, ownerID)
	if err != nil {
		return nil, err
	}
	v := statusView(rec)
	return &v, nil
}

func (s *consultService) GetResult(ctx context.Context, recordID, ownerID uuid.UUID) (*ResultView, error) {
	rec, err := s.owned(ctx, "get_result", recordID, ownerID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusCompleted {
		return nil, &NotReadyError{Status: rec.Status}
	}
	return &ResultView{RecordID: rec.ID, Status: rec.Status, Output: rec.Output}, nil
}

func (s *consultService) List(ctx context.Context, ownerID uuid.UUID, q ListQuery) ([]StatusView, error) {
	if q.Kind != "" && !q.Kind.Valid() {
		return nil, domain.NewValidationError("kind", "is not a known kind")
	}
	if q.Limit > store.MaxListLimit {
		return nil, domain.NewValidationError("limit", "must not exceed 100")
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, domain.NewValidationError("limit", "paging values must not be negative")
	}

	recs, err := s.records.ListByOwner(ctx, ownerID, store.ListFilter{Kind: q.Kind, Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to list work records", slog.String("error", redact.Error(err)))
		return nil, NewConsultServiceError("list", "failed to list work records", err)
	}

	out := make([]StatusView, len(recs))
	for i, rec := range recs {
		out[i] = statusView(rec)
	}
	return out, nil
}

func (s *consultService) Activity(ctx context.Context, recordID, ownerID uuid.UUID) ([]*domain.ActivityLogEntry, error) {
	if _, err := s.owned(ctx, "activity", recordID, ownerID); err != nil {
		return nil, err
	}
	entries, err := s.activity.ListByRecord(ctx, recordID)
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to list activity", slog.String("error", redact.Error(err)))
		return nil, NewConsultServiceError("activity", "failed to list activity", err)
	}
	return entries, nil
}

func (s *consultService) TaskState(ctx context.Context, handle string, ownerID uuid.UUID) (queue.HandleStatus, error) {
	if _, err := s.records.GetByTaskHandle(ctx, handle, ownerID); err != nil {
		return queue.HandleStatus{}, NewConsultServiceError("task_state", "failed to load work record", err)
	}
	st, err := s.queue.State(ctx, handle)
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to inspect task",
			slog.String("task_handle", handle),
			slog.String("error", redact.Error(err)))
		return queue.HandleStatus{}, NewConsultServiceError("task_state", "failed to inspect task", err)
	}
	if st.Message == "" {
		st.Message = st.State.Message()
	}
	return st, nil
}

func statusView(rec *domain.WorkRecord) StatusView {
	return StatusView{
		RecordID:     rec.ID,
		Kind:         rec.Kind,
		Status:       rec.Status,
		TaskHandle:   rec.TaskHandle,
		AttemptCount: rec.AttemptCount,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		ErrorDetail:  rec.ErrorDetail,
	}
}
