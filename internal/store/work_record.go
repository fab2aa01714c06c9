package store

import (
	"context"
	"database/sql"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/google/uuid"
)

// ListFilter narrows ListByOwner results.
type ListFilter struct {
	// Kind restricts results to one kind when non-empty.
	Kind   domain.Kind
	Limit  int
	Offset int
}

// WorkRecordStore defines persistence for work records.
// Implementations must make UpdateStatusFields atomic for a single record.
type WorkRecordStore interface {
	// Create saves a new record. Returns ErrTaskHandleExists when the handle is taken.
	Create(ctx context.Context, rec *domain.WorkRecord) error

	// GetByID retrieves a record regardless of owner. Used by the executor.
	// Returns ErrWorkRecordNotFound if the record does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkRecord, error)

	// GetByIDAndOwner retrieves a record only if ownerID owns it. A record
	// owned by someone else yields ErrWorkRecordNotFound.
	GetByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*domain.WorkRecord, error)

	// GetByTaskHandle retrieves the owner's record bound to a queue handle.
	GetByTaskHandle(ctx context.Context, handle string, ownerID uuid.UUID) (*domain.WorkRecord, error)

	// ListByOwner returns the owner's records, newest first. Never returns nil.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filter ListFilter) ([]*domain.WorkRecord, error)

	// UpdateStatusFields persists status, output, error detail, attempt count
	// and updated_at, but only while the stored status is one of from.
	// Returns ErrStaleTransition when the stored status matched none of them
	// and ErrWorkRecordNotFound when the record does not exist.
	UpdateStatusFields(ctx context.Context, rec *domain.WorkRecord, from ...domain.Status) error

	// WithTx returns a store bound to the given transaction.
	WithTx(tx *sql.Tx) WorkRecordStore
}

// ActivityLogStore defines persistence for the append-only activity log.
type ActivityLogStore interface {
	// Append inserts an entry. Entries are never updated or deleted.
	Append(ctx context.Context, entry *domain.ActivityLogEntry) error

	// ListByRecord returns the entries for a record, oldest first. Never returns nil.
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*domain.ActivityLogEntry, error)

	// WithTx returns a store bound to the given transaction.
	WithTx(tx *sql.Tx) ActivityLogStore
}

// DefaultListLimit and MaxListLimit bound ListByOwner page sizes.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize clamps the filter's paging values into the supported range.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
