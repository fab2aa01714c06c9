package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/platform/logger"
	"github.com/defineconsult/consult-api/internal/store"
	"github.com/google/uuid"
)

const workRecordColumns = `id, owner_id, kind, task_handle, input_payload, status,
	output_payload, error_detail, attempt_count, created_at, updated_at`

// WorkRecordStore implements store.WorkRecordStore on SQLite.
type WorkRecordStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewWorkRecordStore creates a store over a pool or transaction.
func NewWorkRecordStore(db store.DBTX, logger *slog.Logger) *WorkRecordStore {
	if db == nil {
		// ALLOW-PANIC: constructor misuse
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkRecordStore{
		db:     db,
		logger: logger.With(slog.String("component", "work_record_store")),
	}
}

var _ store.WorkRecordStore = (*WorkRecordStore)(nil)

// Create implements store.WorkRecordStore.Create.
func (s *WorkRecordStore) Create(ctx context.Context, rec *domain.WorkRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO work_records (`+workRecordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(),
		rec.OwnerID.String(),
		string(rec.Kind),
		rec.TaskHandle,
		string(rec.Input),
		string(rec.Status),
		nullJSON(rec.Output),
		rec.ErrorDetail,
		rec.AttemptCount,
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		err = MapError(err)
		log.Error("failed to create work record",
			slog.String("error", err.Error()),
			slog.String("record_id", rec.ID.String()))
		return store.NewStoreError("work_record", "create", "insert failed", err)
	}
	return nil
}

// GetByID implements store.WorkRecordStore.GetByID.
func (s *WorkRecordStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkRecord, error) {
	return s.getOne(ctx, "get_by_id",
		`SELECT `+workRecordColumns+` FROM work_records WHERE id = ?`, id.String())
}

// GetByIDAndOwner implements store.WorkRecordStore.GetByIDAndOwner.
func (s *WorkRecordStore) GetByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*domain.WorkRecord, error) {
	return s.getOne(ctx, "get_by_id_and_owner",
		`SELECT `+workRecordColumns+` FROM work_records WHERE id = ? AND owner_id = ?`,
		id.String(), ownerID.String())
}

// GetByTaskHandle implements store.WorkRecordStore.GetByTaskHandle.
func (s *WorkRecordStore) GetByTaskHandle(
	ctx context.Context,
	handle string,
	ownerID uuid.UUID,
) (*domain.WorkRecord, error) {
	return s.getOne(ctx, "get_by_task_handle",
		`SELECT `+workRecordColumns+` FROM work_records WHERE task_handle = ? AND owner_id = ?`,
		handle, ownerID.String())
}

func (s *WorkRecordStore) getOne(ctx context.Context, op, query string, args ...any) (*domain.WorkRecord, error) {
	rec, err := scanWorkRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWorkRecordNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to load work record",
			slog.String("operation", op),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("work_record", op, "query failed", MapError(err))
	}
	return rec, nil
}

// ListByOwner implements store.WorkRecordStore.ListByOwner.
func (s *WorkRecordStore) ListByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
	filter store.ListFilter,
) ([]*domain.WorkRecord, error) {
	filter = filter.Normalize()

	query := `SELECT ` + workRecordColumns + ` FROM work_records WHERE owner_id = ?`
	args := []any{ownerID.String()}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("work_record", "list_by_owner", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	records := make([]*domain.WorkRecord, 0, filter.Limit)
	for rows.Next() {
		rec, err := scanWorkRecord(rows)
		if err != nil {
			return nil, store.NewStoreError("work_record", "list_by_owner", "scan failed", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("work_record", "list_by_owner", "iteration failed", err)
	}
	return records, nil
}

// UpdateStatusFields implements store.WorkRecordStore.UpdateStatusFields.
func (s *WorkRecordStore) UpdateStatusFields(ctx context.Context, rec *domain.WorkRecord, from ...domain.Status) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(from) == 0 {
		return fmt.Errorf("%w: no expected source status", store.ErrInvalidEntity)
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	args := []any{
		string(rec.Status),
		nullJSON(rec.Output),
		rec.ErrorDetail,
		rec.AttemptCount,
		formatTime(rec.UpdatedAt),
		rec.ID.String(),
	}
	for _, st := range from {
		args = append(args, string(st))
	}
	query := `UPDATE work_records
		SET status = ?, output_payload = ?, error_detail = ?, attempt_count = ?, updated_at = ?
		WHERE id = ? AND status IN (?` + strings.Repeat(", ?", len(from)-1) + `)`

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		err = MapError(err)
		log.Error("failed to update work record status",
			slog.String("error", err.Error()),
			slog.String("record_id", rec.ID.String()))
		return store.NewStoreError("work_record", "update_status", "update failed", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("work_record", "update_status", "rows affected failed", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM work_records WHERE id = ?`, rec.ID.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrWorkRecordNotFound
	}
	if err != nil {
		return store.NewStoreError("work_record", "update_status", "status check failed", MapError(err))
	}
	return fmt.Errorf("%w: record is %s", store.ErrStaleTransition, current)
}

// WithTx implements store.WorkRecordStore.WithTx.
func (s *WorkRecordStore) WithTx(tx *sql.Tx) store.WorkRecordStore {
	return &WorkRecordStore{db: tx, logger: s.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkRecord(row rowScanner) (*domain.WorkRecord, error) {
	var (
		rec                  domain.WorkRecord
		id, owner            string
		kind, status, input  string
		output               sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&id, &owner, &kind, &rec.TaskHandle, &input, &status,
		&output, &rec.ErrorDetail, &rec.AttemptCount, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse record id: %w", err)
	}
	if rec.OwnerID, err = uuid.Parse(owner); err != nil {
		return nil, fmt.Errorf("parse owner id: %w", err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	rec.Kind = domain.Kind(kind)
	rec.Status = domain.Status(status)
	rec.Input = json.RawMessage(input)
	if output.Valid {
		rec.Output = json.RawMessage(output.String)
	}
	return &rec, nil
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
