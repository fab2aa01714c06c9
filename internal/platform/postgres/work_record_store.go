package postgres

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

// PostgresWorkRecordStore implements store.WorkRecordStore on PostgreSQL.
type PostgresWorkRecordStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresWorkRecordStore creates a store over a pool or transaction.
// If logger is nil, slog.Default is used.
func NewPostgresWorkRecordStore(db store.DBTX, logger *slog.Logger) *PostgresWorkRecordStore {
	if db == nil {
		// ALLOW-PANIC: constructor misuse
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresWorkRecordStore{
		db:     db,
		logger: logger.With(slog.String("component", "work_record_store")),
	}
}

var _ store.WorkRecordStore = (*PostgresWorkRecordStore)(nil)

// Create implements store.WorkRecordStore.Create.
func (s *PostgresWorkRecordStore) Create(ctx context.Context, rec *domain.WorkRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := rec.Validate(); err != nil {
		log.Warn("work record validation failed during create",
			slog.String("error", err.Error()),
			slog.String("record_id", rec.ID.String()))
		return err
	}

	query := `
		INSERT INTO work_records (` + workRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.OwnerID,
		string(rec.Kind),
		rec.TaskHandle,
		string(rec.Input),
		string(rec.Status),
		nullJSON(rec.Output),
		rec.ErrorDetail,
		rec.AttemptCount,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		err = MapError(err)
		log.Error("failed to create work record",
			slog.String("error", err.Error()),
			slog.String("record_id", rec.ID.String()))
		return store.NewStoreError("work_record", "create", "insert failed", err)
	}

	log.Debug("work record created",
		slog.String("record_id", rec.ID.String()),
		slog.String("kind", string(rec.Kind)))
	return nil
}

// GetByID implements store.WorkRecordStore.GetByID.
func (s *PostgresWorkRecordStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkRecord, error) {
	query := `SELECT ` + workRecordColumns + ` FROM work_records WHERE id = $1`
	return s.getOne(ctx, "get_by_id", query, id)
}

// GetByIDAndOwner implements store.WorkRecordStore.GetByIDAndOwner.
func (s *PostgresWorkRecordStore) GetByIDAndOwner(
	ctx context.Context,
	id, ownerID uuid.UUID,
) (*domain.WorkRecord, error) {
	query := `SELECT ` + workRecordColumns + ` FROM work_records WHERE id = $1 AND owner_id = $2`
	return s.getOne(ctx, "get_by_id_and_owner", query, id, ownerID)
}

// GetByTaskHandle implements store.WorkRecordStore.GetByTaskHandle.
func (s *PostgresWorkRecordStore) GetByTaskHandle(
	ctx context.Context,
	handle string,
	ownerID uuid.UUID,
) (*domain.WorkRecord, error) {
	query := `SELECT ` + workRecordColumns + ` FROM work_records WHERE task_handle = $1 AND owner_id = $2`
	return s.getOne(ctx, "get_by_task_handle", query, handle, ownerID)
}

func (s *PostgresWorkRecordStore) getOne(
	ctx context.Context,
	op, query string,
	args ...any,
) (*domain.WorkRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rec, err := scanWorkRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWorkRecordNotFound
		}
		log.Error("failed to load work record",
			slog.String("operation", op),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("work_record", op, "query failed", MapError(err))
	}
	return rec, nil
}

// ListByOwner implements store.WorkRecordStore.ListByOwner.
func (s *PostgresWorkRecordStore) ListByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
	filter store.ListFilter,
) ([]*domain.WorkRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	filter = filter.Normalize()

	query := `SELECT ` + workRecordColumns + ` FROM work_records WHERE owner_id = $1`
	args := []any{ownerID}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list work records",
			slog.String("error", err.Error()),
			slog.String("owner_id", ownerID.String()))
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
func (s *PostgresWorkRecordStore) UpdateStatusFields(
	ctx context.Context,
	rec *domain.WorkRecord,
	from ...domain.Status,
) error {
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
		rec.UpdatedAt,
		rec.ID,
	}
	placeholders := make([]string, len(from))
	for i, st := range from {
		args = append(args, string(st))
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := `
		UPDATE work_records
		SET status = $1, output_payload = $2, error_detail = $3, attempt_count = $4, updated_at = $5
		WHERE id = $6 AND status IN (` + strings.Join(placeholders, ", ") + `)`

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		err = MapError(err)
		log.Error("failed to update work record status",
			slog.String("error", err.Error()),
			slog.String("record_id", rec.ID.String()),
			slog.String("status", string(rec.Status)))
		return store.NewStoreError("work_record", "update_status", "update failed", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return store.NewStoreError("work_record", "update_status", "update failed", err)
	}
	if n > 0 {
		log.Debug("work record status updated",
			slog.String("record_id", rec.ID.String()),
			slog.String("status", string(rec.Status)),
			slog.Int("attempt", rec.AttemptCount))
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM work_records WHERE id = $1`, rec.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrWorkRecordNotFound
	}
	if err != nil {
		return store.NewStoreError("work_record", "update_status", "status check failed", MapError(err))
	}
	log.Debug("conditional status update skipped",
		slog.String("record_id", rec.ID.String()),
		slog.String("current_status", current),
		slog.String("target_status", string(rec.Status)))
	return fmt.Errorf("%w: record is %s", store.ErrStaleTransition, current)
}

// WithTx implements store.WorkRecordStore.WithTx.
func (s *PostgresWorkRecordStore) WithTx(tx *sql.Tx) store.WorkRecordStore {
	return &PostgresWorkRecordStore{db: tx, logger: s.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkRecord(row rowScanner) (*domain.WorkRecord, error) {
	var (
		rec    domain.WorkRecord
		kind   string
		status string
		input  string
		output sql.NullString
	)
	err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&kind,
		&rec.TaskHandle,
		&input,
		&status,
		&output,
		&rec.ErrorDetail,
		&rec.AttemptCount,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Kind = domain.Kind(kind)
	rec.Status = domain.Status(status)
	rec.Input = json.RawMessage(input)
	if output.Valid {
		rec.Output = json.RawMessage(output.String)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
