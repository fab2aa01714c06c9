package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/platform/logger"
	"github.com/defineconsult/consult-api/internal/store"
	"github.com/google/uuid"
)

// PostgresActivityLogStore implements store.ActivityLogStore on PostgreSQL.
type PostgresActivityLogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresActivityLogStore creates an activity log store over a pool or transaction.
func NewPostgresActivityLogStore(db store.DBTX, logger *slog.Logger) *PostgresActivityLogStore {
	if db == nil {
		// ALLOW-PANIC: constructor misuse
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresActivityLogStore{
		db:     db,
		logger: logger.With(slog.String("component", "activity_log_store")),
	}
}

var _ store.ActivityLogStore = (*PostgresActivityLogStore)(nil)

// Append implements store.ActivityLogStore.Append.
func (s *PostgresActivityLogStore) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := entry.Validate(); err != nil {
		return err
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("%w: encode metadata: %v", store.ErrInvalidEntity, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, work_record_id, phase, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID,
		entry.WorkRecordID,
		string(entry.Phase),
		string(metadata),
		entry.Timestamp,
	)
	if err != nil {
		err = MapError(err)
		log.Error("failed to append activity entry",
			slog.String("error", err.Error()),
			slog.String("record_id", entry.WorkRecordID.String()),
			slog.String("phase", string(entry.Phase)))
		return store.NewStoreError("activity_log", "append", "insert failed", err)
	}
	return nil
}

// ListByRecord implements store.ActivityLogStore.ListByRecord.
func (s *PostgresActivityLogStore) ListByRecord(
	ctx context.Context,
	recordID uuid.UUID,
) ([]*domain.ActivityLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_record_id, phase, metadata, created_at
		FROM activity_log
		WHERE work_record_id = $1
		ORDER BY id`, recordID)
	if err != nil {
		return nil, store.NewStoreError("activity_log", "list_by_record", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	entries := []*domain.ActivityLogEntry{}
	for rows.Next() {
		var (
			entry    domain.ActivityLogEntry
			phase    string
			metadata string
		)
		if err := rows.Scan(&entry.ID, &entry.WorkRecordID, &phase, &metadata, &entry.Timestamp); err != nil {
			return nil, store.NewStoreError("activity_log", "list_by_record", "scan failed", err)
		}
		entry.Phase = domain.Phase(phase)
		entry.Timestamp = entry.Timestamp.UTC()
		if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
			return nil, store.NewStoreError("activity_log", "list_by_record", "decode metadata failed", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("activity_log", "list_by_record", "iteration failed", err)
	}
	return entries, nil
}

// WithTx implements store.ActivityLogStore.WithTx.
func (s *PostgresActivityLogStore) WithTx(tx *sql.Tx) store.ActivityLogStore {
	return &PostgresActivityLogStore{db: tx, logger: s.logger}
}
