package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/llm"
	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/defineconsult/consult-api/internal/redact"
	"github.com/defineconsult/consult-api/internal/store"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrNilProvider = errors.New("work item provider cannot be nil")
	ErrNilFallback = errors.New("work item fallback cannot be nil")
	ErrNilStore    = errors.New("store cannot be nil")
	ErrNilDB       = errors.New("database cannot be nil")
	ErrUnknownKind = errors.New("no handler registered for kind")
)

// Deps are the persistence dependencies shared by every engine.
type Deps struct {
	DB       *sql.DB
	Records  store.WorkRecordStore
	Activity store.ActivityLogStore
}

// Engine executes deliveries for one kind.
type Engine[TIn domain.Input, TOut any] struct {
	item     WorkItem[TIn, TOut]
	db       *sql.DB
	records  store.WorkRecordStore
	activity store.ActivityLogStore
	logger   *slog.Logger
	now      func() time.Time
}

var _ Handler = (*Engine[domain.TranscriptInput, map[string]any])(nil)

// NewEngine binds item to the stores.
func NewEngine[TIn domain.Input, TOut any](item WorkItem[TIn, TOut], deps Deps, logger *slog.Logger) (*Engine[TIn, TOut], error) {
	if err := item.validate(); err != nil {
		return nil, err
	}
	if deps.DB == nil {
		return nil, ErrNilDB
	}
	if deps.Records == nil || deps.Activity == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine[TIn, TOut]{
		item:     item,
		db:       deps.DB,
		records:  deps.Records,
		activity: deps.Activity,
		logger:   logger.With(slog.String("component", "task_engine"), slog.String("kind", string(item.Kind))),
		now:      time.Now,
	}, nil
}

// Kind implements Handler.
func (e *Engine[TIn, TOut]) Kind() domain.Kind { return e.item.Kind }

// Handle implements Handler. It returns nil for duplicate deliveries and
// lost races, a queue.Permanent error for work that can never succeed, and
// a *llm.ProviderError when the provider failed and a retry may help.
func (e *Engine[TIn, TOut]) Handle(ctx context.Context, recordID uuid.UUID, attempt int) error {
	log := e.logger.With(slog.String("record_id", recordID.String()), slog.Int("attempt", attempt))

	rec, err := e.records.GetByID(ctx, recordID)
	if err != nil {
		if store.IsNotFoundError(err) {
			log.ErrorContext(ctx, "work record not found, dropping task")
			return queue.Permanent(fmt.Errorf("work record %s: %w", recordID, err))
		}
		return fmt.Errorf("load work record: %w", err)
	}
	if rec.Kind != e.item.Kind {
		return queue.Permanent(fmt.Errorf("%w: record %s is %s", domain.ErrInvalidKind, rec.ID, rec.Kind))
	}
	log = log.With(slog.String("task_handle", rec.TaskHandle))

	if !rec.AcceptsAttempt(attempt) {
		log.InfoContext(ctx, "duplicate delivery ignored",
			slog.String("status", string(rec.Status)),
			slog.Int("attempt_count", rec.AttemptCount))
		return nil
	}

	if err := e.begin(ctx, rec, attempt); err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			log.InfoContext(ctx, "record moved on before processing started")
			return nil
		}
		return err
	}
	log.InfoContext(ctx, "processing started")

	start := e.now()
	var in TIn
	if err := rec.DecodeInput(&in); err != nil {
		return e.fail(ctx, log, rec, attempt, start, queue.Permanent(err))
	}

	raw, err := e.item.Provider(ctx, in, Meta{
		OwnerID:  rec.OwnerID,
		RecordID: rec.ID,
		Kind:     rec.Kind,
		Attempt:  attempt,
	})
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown: the record stays processing and the redelivery re-runs it.
			log.WarnContext(ctx, "provider call interrupted", slog.String("error", redact.Error(err)))
			return ctx.Err()
		}
		perr := llm.NewProviderError(string(e.item.Kind), err)
		if llm.IsContentBlocked(err) {
			perr = queue.Permanent(perr)
		}
		return e.fail(ctx, log, rec, attempt, start, perr)
	}

	return e.complete(ctx, log, rec, attempt, start, in, raw)
}

func (e *Engine[TIn, TOut]) begin(ctx context.Context, rec *domain.WorkRecord, attempt int) error {
	from := rec.Status
	if err := rec.BeginAttempt(attempt, e.now()); err != nil {
		return queue.Permanent(err)
	}

	entry, err := domain.NewActivityLogEntry(rec.ID, domain.PhaseStarted, map[string]any{
		"kind":    string(rec.Kind),
		"action":  domain.ActionProcessingStarted,
		"attempt": attempt,
	})
	if err != nil {
		return err
	}

	return store.RunInTransaction(ctx, e.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := e.records.WithTx(tx).UpdateStatusFields(ctx, rec, from); err != nil {
			return err
		}
		return e.activity.WithTx(tx).Append(ctx, entry)
	})
}

func (e *Engine[TIn, TOut]) complete(
	ctx context.Context,
	log *slog.Logger,
	rec *domain.WorkRecord,
	attempt int,
	start time.Time,
	in TIn,
	raw string,
) error {
	res := e.item.parse(raw, in)
	if w := res.Warning(); w != nil {
		log.WarnContext(ctx, "ParseFallbackWarning", slog.String("reason", redact.String(w.Reason)))
	}

	out := res.Value()
	payload, err := json.Marshal(out)
	if err != nil {
		return e.fail(ctx, log, rec, attempt, start, queue.Permanent(fmt.Errorf("encode output: %w", err)))
	}
	if err := rec.Complete(payload, e.now()); err != nil {
		return e.fail(ctx, log, rec, attempt, start, queue.Permanent(err))
	}

	duration := e.now().Sub(start)
	meta := map[string]any{
		"kind":        string(rec.Kind),
		"action":      domain.ActionProcessingCompleted,
		"attempt":     attempt,
		"output_size": len(payload),
		"duration_ms": duration.Milliseconds(),
		"fallback":    res.IsFallback(),
	}
	for k, v := range e.item.metrics(out) {
		meta[k] = v
	}

	err = e.conclude(ctx, rec, domain.PhaseCompleted, meta)
	if errors.Is(err, store.ErrStaleTransition) {
		log.InfoContext(ctx, "another delivery concluded this record first")
		return nil
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to record completion", slog.String("error", redact.Error(err)))
		return fmt.Errorf("record completion: %w", err)
	}

	log.InfoContext(ctx, "processing completed",
		slog.Duration("duration", duration),
		slog.Bool("fallback", res.IsFallback()))
	return nil
}

// fail records cause on the record and returns it for the queue. A record
// already concluded by another delivery is left alone and nil is returned.
func (e *Engine[TIn, TOut]) fail(
	ctx context.Context,
	log *slog.Logger,
	rec *domain.WorkRecord,
	attempt int,
	start time.Time,
	cause error,
) error {
	detail := redact.Error(cause)
	if err := rec.Fail(detail, e.now()); err != nil {
		return errors.Join(cause, err)
	}

	err := e.conclude(ctx, rec, domain.PhaseFailed, map[string]any{
		"kind":        string(rec.Kind),
		"action":      domain.ActionProcessingFailed,
		"attempt":     attempt,
		"error":       detail,
		"duration_ms": e.now().Sub(start).Milliseconds(),
	})
	if errors.Is(err, store.ErrStaleTransition) {
		log.InfoContext(ctx, "another delivery concluded this record first")
		return nil
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to record failure", slog.String("error", redact.Error(err)))
		return errors.Join(cause, err)
	}

	log.WarnContext(ctx, "processing failed",
		slog.String("error", detail),
		slog.Bool("permanent", queue.IsPermanent(cause)))
	return cause
}

// conclude writes a terminal status and its log entry, conditional on the
// record still being processing.
func (e *Engine[TIn, TOut]) conclude(
	ctx context.Context,
	rec *domain.WorkRecord,
	phase domain.Phase,
	meta map[string]any,
) error {
	entry, err := domain.NewActivityLogEntry(rec.ID, phase, meta)
	if err != nil {
		return err
	}
	return store.RunInTransaction(ctx, e.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := e.records.WithTx(tx).UpdateStatusFields(ctx, rec, domain.StatusProcessing); err != nil {
			return err
		}
		return e.activity.WithTx(tx).Append(ctx, entry)
	})
}
