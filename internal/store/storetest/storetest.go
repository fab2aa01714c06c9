// Package storetest holds the behavioural suite every store implementation
// must pass. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Backend is what a store implementation hands to the suite.
type Backend struct {
	DB       *sql.DB
	Records  store.WorkRecordStore
	Activity store.ActivityLogStore
	// Postgres selects $n placeholders for the suite's raw SQL.
	Postgres bool
}

// Factory returns a backend over a fresh, empty schema.
type Factory func(t *testing.T) Backend

// Run executes the full suite against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("create and get", func(t *testing.T) { testCreateAndGet(t, newBackend(t)) })
	t.Run("duplicate task handle", func(t *testing.T) { testDuplicateHandle(t, newBackend(t)) })
	t.Run("ownership", func(t *testing.T) { testOwnership(t, newBackend(t)) })
	t.Run("list by owner", func(t *testing.T) { testListByOwner(t, newBackend(t)) })
	t.Run("conditional update", func(t *testing.T) { testConditionalUpdate(t, newBackend(t)) })
	t.Run("concurrent conclusion", func(t *testing.T) { testConcurrentConclusion(t, newBackend(t)) })
	t.Run("outcome constraint", func(t *testing.T) { testOutcomeConstraint(t, newBackend(t)) })
	t.Run("activity log", func(t *testing.T) { testActivityLog(t, newBackend(t)) })
	t.Run("transaction rollback", func(t *testing.T) { testTransactionRollback(t, newBackend(t)) })
}

// NewRecord builds a valid transcript record for owner.
func NewRecord(t *testing.T, owner uuid.UUID) *domain.WorkRecord {
	t.Helper()
	rec, err := domain.NewWorkRecord(owner,
		domain.TranscriptInput{Title: "Call", Content: "the export button was disabled"},
		domain.NewTaskHandle())
	require.NoError(t, err)
	return rec
}

func testCreateAndGet(t *testing.T, b Backend) {
	ctx := context.Background()
	rec := NewRecord(t, uuid.New())
	require.NoError(t, b.Records.Create(ctx, rec))

	got, err := b.Records.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.OwnerID, got.OwnerID)
	assert.Equal(t, rec.Kind, got.Kind)
	assert.Equal(t, rec.TaskHandle, got.TaskHandle)
	assert.Equal(t, domain.StatusCreated, got.Status)
	assert.JSONEq(t, string(rec.Input), string(got.Input))
	assert.Empty(t, got.Output)
	assert.Empty(t, got.ErrorDetail)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = b.Records.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrWorkRecordNotFound)
	assert.True(t, store.IsNotFoundError(err))

	invalid := NewRecord(t, uuid.New())
	invalid.Status = "done"
	assert.ErrorIs(t, b.Records.Create(ctx, invalid), domain.ErrInvalidStatus)
}

func testDuplicateHandle(t *testing.T, b Backend) {
	ctx := context.Background()
	first := NewRecord(t, uuid.New())
	require.NoError(t, b.Records.Create(ctx, first))

	second := NewRecord(t, uuid.New())
	second.TaskHandle = first.TaskHandle
	err := b.Records.Create(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrTaskHandleExists)
	assert.True(t, store.IsDuplicateError(err))
}

func testOwnership(t *testing.T, b Backend) {
	ctx := context.Background()
	owner, stranger := uuid.New(), uuid.New()
	rec := NewRecord(t, owner)
	require.NoError(t, b.Records.Create(ctx, rec))

	got, err := b.Records.GetByIDAndOwner(ctx, rec.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = b.Records.GetByIDAndOwner(ctx, rec.ID, stranger)
	assert.ErrorIs(t, err, store.ErrWorkRecordNotFound)

	got, err = b.Records.GetByTaskHandle(ctx, rec.TaskHandle, owner)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	_, err = b.Records.GetByTaskHandle(ctx, rec.TaskHandle, stranger)
	assert.ErrorIs(t, err, store.ErrWorkRecordNotFound)
}

func testListByOwner(t *testing.T, b Backend) {
	ctx := context.Background()
	owner := uuid.New()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		rec := NewRecord(t, owner)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		rec.UpdatedAt = rec.CreatedAt
		require.NoError(t, b.Records.Create(ctx, rec))
		ids = append(ids, rec.ID)
	}
	content, err := domain.NewWorkRecord(owner, domain.ContentInput{
		Platform: "blog", ContentType: "blog_post", SourceMaterial: "release notes",
	}, domain.NewTaskHandle())
	require.NoError(t, err)
	content.CreatedAt = base.Add(-time.Minute)
	require.NoError(t, b.Records.Create(ctx, content))
	require.NoError(t, b.Records.Create(ctx, NewRecord(t, uuid.New())))

	all, err := b.Records.ListByOwner(ctx, owner, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ids[2], all[0].ID, "newest first")
	assert.Equal(t, content.ID, all[3].ID)

	transcripts, err := b.Records.ListByOwner(ctx, owner, store.ListFilter{Kind: domain.KindTranscriptAnalysis})
	require.NoError(t, err)
	assert.Len(t, transcripts, 3)

	page, err := b.Records.ListByOwner(ctx, owner, store.ListFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)

	none, err := b.Records.ListByOwner(ctx, uuid.New(), store.ListFilter{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testConditionalUpdate(t *testing.T, b Backend) {
	ctx := context.Background()
	rec := NewRecord(t, uuid.New())
	require.NoError(t, b.Records.Create(ctx, rec))

	now := time.Now()
	require.NoError(t, rec.BeginAttempt(1, now))
	require.NoError(t, b.Records.UpdateStatusFields(ctx, rec, domain.StatusCreated))

	require.NoError(t, rec.Complete(json.RawMessage(`{"insights":["export disabled"]}`), now))
	require.NoError(t, b.Records.UpdateStatusFields(ctx, rec, domain.StatusProcessing))

	got, err := b.Records.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.JSONEq(t, `{"insights":["export disabled"]}`, string(got.Output))

	stale := *got
	stale.Status = domain.StatusFailed
	stale.Output = nil
	stale.ErrorDetail = "late failure"
	err = b.Records.UpdateStatusFields(ctx, &stale, domain.StatusProcessing)
	assert.ErrorIs(t, err, store.ErrStaleTransition)

	got, err = b.Records.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status, "completed output is never overwritten")

	missing := NewRecord(t, uuid.New())
	err = b.Records.UpdateStatusFields(ctx, missing, domain.StatusCreated)
	assert.ErrorIs(t, err, store.ErrWorkRecordNotFound)

	assert.ErrorIs(t, b.Records.UpdateStatusFields(ctx, rec), store.ErrInvalidEntity)
}

func testConcurrentConclusion(t *testing.T, b Backend) {
	ctx := context.Background()
	rec := NewRecord(t, uuid.New())
	require.NoError(t, b.Records.Create(ctx, rec))
	require.NoError(t, rec.BeginAttempt(1, time.Now()))
	require.NoError(t, b.Records.UpdateStatusFields(ctx, rec, domain.StatusCreated))

	const writers = 4
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		stale    int
		failures []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			local := *rec
			out, _ := json.Marshal(map[string]int{"writer": i})
			if err := local.Complete(out, time.Now()); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return
			}
			err := b.Records.UpdateStatusFields(ctx, &local, domain.StatusProcessing)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, store.ErrStaleTransition):
				stale++
			default:
				failures = append(failures, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, failures)
	assert.Equal(t, 1, winners, "exactly one writer concludes the record")
	assert.Equal(t, writers-1, stale)
}

func testOutcomeConstraint(t *testing.T, b Backend) {
	ctx := context.Background()
	rec := NewRecord(t, uuid.New())
	require.NoError(t, b.Records.Create(ctx, rec))

	// Bypass domain validation to prove the schema enforces the invariant.
	query := `UPDATE work_records SET status = 'completed' WHERE id = ?`
	if b.Postgres {
		query = strings.Replace(query, "?", "$1", 1)
	}
	_, err := b.DB.ExecContext(ctx, query, rec.ID.String())
	assert.Error(t, err)
}

func testActivityLog(t *testing.T, b Backend) {
	ctx := context.Background()
	recordID := uuid.New()

	var want []string
	for _, phase := range []domain.Phase{domain.PhaseStarted, domain.PhaseFailed, domain.PhaseStarted, domain.PhaseCompleted} {
		entry, err := domain.NewActivityLogEntry(recordID, phase, map[string]any{
			"kind":    string(domain.KindTranscriptAnalysis),
			"attempt": 1,
		})
		require.NoError(t, err)
		require.NoError(t, b.Activity.Append(ctx, entry))
		want = append(want, entry.ID)
	}
	other, err := domain.NewActivityLogEntry(uuid.New(), domain.PhaseStarted, nil)
	require.NoError(t, err)
	require.NoError(t, b.Activity.Append(ctx, other))

	entries, err := b.Activity.ListByRecord(ctx, recordID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, want[i], e.ID)
		assert.Equal(t, recordID, e.WorkRecordID)
	}
	assert.Equal(t, domain.PhaseCompleted, entries[3].Phase)
	assert.Equal(t, "transcript_analysis", entries[0].Metadata["kind"])
	assert.EqualValues(t, 1, entries[0].Metadata["attempt"])

	empty, err := b.Activity.ListByRecord(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func testTransactionRollback(t *testing.T, b Backend) {
	ctx := context.Background()
	rec := NewRecord(t, uuid.New())

	err := store.RunInTransaction(ctx, b.DB, func(ctx context.Context, tx *sql.Tx) error {
		if err := b.Records.WithTx(tx).Create(ctx, rec); err != nil {
			return err
		}
		entry, err := domain.NewActivityLogEntry(rec.ID, domain.PhaseStarted, nil)
		if err != nil {
			return err
		}
		if err := b.Activity.WithTx(tx).Append(ctx, entry); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = b.Records.GetByID(ctx, rec.ID)
	assert.ErrorIs(t, err, store.ErrWorkRecordNotFound)
	entries, err := b.Activity.ListByRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, store.RunInTransaction(ctx, b.DB, func(ctx context.Context, tx *sql.Tx) error {
		return b.Records.WithTx(tx).Create(ctx, rec)
	}))
	_, err = b.Records.GetByID(ctx, rec.ID)
	assert.NoError(t, err)
}
