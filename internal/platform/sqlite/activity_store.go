package sqlite

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

// ActivityLogStore implements store.ActivityLogStore on SQLite.
type ActivityLogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewActivityLogStore creates an activity log store over a pool or transaction.
func NewActivityLogStore(db store.DBTX, logger *slog.Logger) *ActivityLogStore {
	if db == nil {
		// ALLOW-PANIC: constructor misuse
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityLogStore{
		db:     db,
		logger: logger.With(slog.String("component", "activity_log_store")),
	}
}

var _ store.ActivityLogStore = (*ActivityLogStore)(nil)

// Append implements store.ActivityLogStore.Append.
func (s *ActivityLogStore) Append(ctx context.Context, entry *domain.ActivityLogEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("%w: encode metadata: %v", store.ErrInvalidEntity, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activity_log (id, work_record_id, phase, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID,
		entry.WorkRecordID.String(),
		string(entry.Phase),
		string(metadata),
		formatTime(entry.Timestamp),
	)
	if err != nil {
		err = MapError(err)
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to append activity entry",
			slog.String("error", err.Error()),
			slog.String("record_id", entry.WorkRecordID.String()))
		return store.NewStoreError("activity_log", "append", "insert failed", err)
	}
	return nil
}

// ListByRecord implements store.ActivityLogStore.ListByRecord.
func (s *ActivityLogStore) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*domain.ActivityLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phase, metadata, created_at FROM activity_log WHERE work_record_id = ? ORDER BY id`,
		recordID.String())
	if err != nil {
		return nil, store.NewStoreError("activity_log", "list_by_record", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	entries := []*domain.ActivityLogEntry{}
	for rows.Next() {
		var (
			phase, metadata, ts string
			entry               = domain.ActivityLogEntry{WorkRecordID: recordID}
		)
		if err := rows.Scan(&entry.ID, &phase, &metadata, &ts); err != nil {
			return nil, store.NewStoreError("activity_log", "list_by_record", "scan failed", err)
		}
		entry.Phase = domain.Phase(phase)
		if entry.Timestamp, err = parseTime(ts); err != nil {
			return nil, store.NewStoreError("activity_log", "list_by_record", "scan failed", err)
		}
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
func (s *ActivityLogStore) WithTx(tx *sql.Tx) store.ActivityLogStore {
	return &ActivityLogStore{db: tx, logger: s.logger}
}
