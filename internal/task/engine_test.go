package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/llm"
	"github.com/defineconsult/consult-api/internal/platform/sqlite"
	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/defineconsult/consult-api/internal/queue/memory"
	"github.com/defineconsult/consult-api/internal/store"
	"github.com/defineconsult/consult-api/internal/testdb"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type insightsOut struct {
	Insights []string `json:"insights"`
	Summary  string   `json:"summary"`
}

type fixture struct {
	db       *sql.DB
	records  store.WorkRecordStore
	activity store.ActivityLogStore
	calls    atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testdb.NewSQLite(t)
	return &fixture{
		db:       db,
		records:  sqlite.NewWorkRecordStore(db, nil),
		activity: sqlite.NewActivityLogStore(db, nil),
	}
}

func (f *fixture) deps() Deps {
	return Deps{DB: f.db, Records: f.records, Activity: f.activity}
}

// engine builds a transcript engine whose provider answers with reply.
func (f *fixture) engine(t *testing.T, reply func(attempt int) (string, error)) *Engine[domain.TranscriptInput, insightsOut] {
	t.Helper()
	e, err := NewEngine(WorkItem[domain.TranscriptInput, insightsOut]{
		Kind: domain.KindTranscriptAnalysis,
		Provider: func(ctx context.Context, in domain.TranscriptInput, meta Meta) (string, error) {
			f.calls.Add(1)
			return reply(meta.Attempt)
		},
		Fallback: func(in domain.TranscriptInput) insightsOut {
			return insightsOut{Insights: []string{"manual review needed"}, Summary: "fallback"}
		},
		Metrics: func(out insightsOut) map[string]any {
			return map[string]any{"insights_count": len(out.Insights)}
		},
	}, f.deps(), nil)
	require.NoError(t, err)
	return e
}

func (f *fixture) submit(t *testing.T) *domain.WorkRecord {
	t.Helper()
	rec, err := domain.NewWorkRecord(uuid.New(),
		domain.TranscriptInput{Title: "Call", Content: "user complained export button was disabled"},
		domain.NewTaskHandle())
	require.NoError(t, err)
	require.NoError(t, f.records.Create(context.Background(), rec))
	return rec
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *domain.WorkRecord {
	t.Helper()
	rec, err := f.records.GetByID(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (f *fixture) phases(t *testing.T, id uuid.UUID) []domain.Phase {
	t.Helper()
	entries, err := f.activity.ListByRecord(context.Background(), id)
	require.NoError(t, err)
	out := make([]domain.Phase, len(entries))
	for i, e := range entries {
		out[i] = e.Phase
	}
	return out
}

func ok(raw string) func(int) (string, error) {
	return func(int) (string, error) { return raw, nil }
}

func TestEngineCompletes(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, ok("Sure!\n```json\n{\"insights\":[\"export button disabled\"],\"summary\":\"s\"}\n```"))
	rec := f.submit(t)

	require.NoError(t, e.Handle(context.Background(), rec.ID, 1))

	got := f.reload(t, rec.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Empty(t, got.ErrorDetail)
	assert.JSONEq(t, `{"insights":["export button disabled"],"summary":"s"}`, string(got.Output))

	entries, err := f.activity.ListByRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.PhaseStarted, entries[0].Phase)
	assert.Equal(t, domain.ActionProcessingStarted, entries[0].Metadata["action"])

	done := entries[1]
	assert.Equal(t, domain.PhaseCompleted, done.Phase)
	assert.Equal(t, domain.ActionProcessingCompleted, done.Metadata["action"])
	assert.Equal(t, string(domain.KindTranscriptAnalysis), done.Metadata["kind"])
	assert.EqualValues(t, 1, done.Metadata["attempt"])
	assert.EqualValues(t, 1, done.Metadata["insights_count"])
	assert.Equal(t, false, done.Metadata["fallback"])
	assert.Contains(t, done.Metadata, "duration_ms")
	assert.Contains(t, done.Metadata, "output_size")
}

func TestEngineFallbackOutput(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, ok("The customer was frustrated by the export button."))
	rec := f.submit(t)

	require.NoError(t, e.Handle(context.Background(), rec.ID, 1))

	got := f.reload(t, rec.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	var out insightsOut
	require.NoError(t, json.Unmarshal(got.Output, &out))
	assert.Equal(t, []string{"manual review needed"}, out.Insights)

	entries, err := f.activity.ListByRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, true, entries[1].Metadata["fallback"])
}

func TestEngineIgnoresDuplicateDeliveries(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, ok(`{"insights":["a"]}`))
	rec := f.submit(t)
	ctx := context.Background()

	require.NoError(t, e.Handle(ctx, rec.ID, 1))
	first := f.reload(t, rec.ID)

	for _, attempt := range []int{1, 1, 2, 3} {
		require.NoError(t, e.Handle(ctx, rec.ID, attempt))
	}

	again := f.reload(t, rec.ID)
	assert.Equal(t, domain.StatusCompleted, again.Status)
	assert.JSONEq(t, string(first.Output), string(again.Output))
	assert.Equal(t, first.AttemptCount, again.AttemptCount)
	assert.Equal(t, int32(1), f.calls.Load(), "completed work is never re-run")
	assert.Equal(t, []domain.Phase{domain.PhaseStarted, domain.PhaseCompleted}, f.phases(t, rec.ID))
}

func TestEngineFailureAndRetry(t *testing.T) {
	f := newFixture(t)
	down := errors.New("503 from provider")
	e := f.engine(t, func(attempt int) (string, error) {
		if attempt == 1 {
			return "", down
		}
		return `{"insights":["b"]}`, nil
	})
	rec := f.submit(t)
	ctx := context.Background()

	err := e.Handle(ctx, rec.ID, 1)
	var pe *llm.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, down)
	assert.False(t, queue.IsPermanent(err))

	failed := f.reload(t, rec.ID)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, 1, failed.AttemptCount)
	assert.Contains(t, failed.ErrorDetail, "503")
	assert.Empty(t, failed.Output)

	// A duplicate of the concluded attempt does nothing.
	require.NoError(t, e.Handle(ctx, rec.ID, 1))
	assert.Equal(t, int32(1), f.calls.Load())

	// The queue's retry carries a higher attempt and reopens the record.
	require.NoError(t, e.Handle(ctx, rec.ID, 2))
	done := f.reload(t, rec.ID)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 2, done.AttemptCount)
	assert.Empty(t, done.ErrorDetail)

	assert.Equal(t, []domain.Phase{
		domain.PhaseStarted, domain.PhaseFailed, domain.PhaseStarted, domain.PhaseCompleted,
	}, f.phases(t, rec.ID))
}

func TestEnginePermanentErrors(t *testing.T) {
	t.Run("missing record", func(t *testing.T) {
		f := newFixture(t)
		e := f.engine(t, ok(`{}`))
		err := e.Handle(context.Background(), uuid.New(), 1)
		assert.True(t, queue.IsPermanent(err))
		assert.True(t, store.IsNotFoundError(err))
	})

	t.Run("content blocked", func(t *testing.T) {
		f := newFixture(t)
		e := f.engine(t, func(int) (string, error) { return "", llm.ErrContentBlocked })
		rec := f.submit(t)

		err := e.Handle(context.Background(), rec.ID, 1)
		assert.True(t, queue.IsPermanent(err))
		assert.Equal(t, domain.StatusFailed, f.reload(t, rec.ID).Status)
	})

	t.Run("kind mismatch", func(t *testing.T) {
		f := newFixture(t)
		rec := f.submit(t)
		e, err := NewEngine(WorkItem[domain.CompetitorInput, insightsOut]{
			Kind: domain.KindCompetitorAnalysis,
			Provider: func(context.Context, domain.CompetitorInput, Meta) (string, error) {
				return "{}", nil
			},
			Fallback: func(domain.CompetitorInput) insightsOut { return insightsOut{} },
		}, f.deps(), nil)
		require.NoError(t, err)

		err = e.Handle(context.Background(), rec.ID, 1)
		assert.True(t, queue.IsPermanent(err))
		assert.Equal(t, domain.StatusCreated, f.reload(t, rec.ID).Status)
	})
}

func TestEngineLeavesInterruptedWorkProcessing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	e := f.engine(t, func(int) (string, error) {
		cancel()
		return "", context.Canceled
	})
	rec := f.submit(t)

	err := e.Handle(ctx, rec.ID, 1)
	assert.ErrorIs(t, err, context.Canceled)

	got := f.reload(t, rec.ID)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, []domain.Phase{domain.PhaseStarted}, f.phases(t, rec.ID))

	// Redelivery after restart finishes the work.
	e2 := f.engine(t, ok(`{"insights":[]}`))
	require.NoError(t, e2.Handle(context.Background(), rec.ID, 1))
	assert.Equal(t, domain.StatusCompleted, f.reload(t, rec.ID).Status)
}

func TestEngineConcurrentDeliveriesConcludeOnce(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, ok(`{"insights":["x"]}`))
	rec := f.submit(t)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.Handle(context.Background(), rec.ID, 1)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, domain.StatusCompleted, f.reload(t, rec.ID).Status)

	completed := 0
	for _, p := range f.phases(t, rec.ID) {
		assert.NotEqual(t, domain.PhaseFailed, p)
		if p == domain.PhaseCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestEngineExhaustsRetriesThroughQueue(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, func(int) (string, error) { return "", errors.New("provider unavailable") })
	reg := NewRegistry(e)
	rec := f.submit(t)

	q := memory.New(memory.Config{
		Concurrency: 2,
		BufferSize:  10,
		Retry:       queue.RetryPolicy{Delay: 0, MaxAttempts: 3},
	}, nil)
	t.Cleanup(func() { _ = q.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, reg.Dispatch) }()

	require.NoError(t, q.Enqueue(ctx, queue.Job{Kind: rec.Kind, RecordID: rec.ID}, rec.TaskHandle))

	require.Eventually(t, func() bool {
		st, err := q.State(context.Background(), rec.TaskHandle)
		return err == nil && st.State == queue.StateFailure
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	got := f.reload(t, rec.ID)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, 3, got.AttemptCount)
	assert.Contains(t, got.ErrorDetail, "provider unavailable")
	assert.Equal(t, int32(3), f.calls.Load())

	failed := 0
	for _, p := range f.phases(t, rec.ID) {
		if p == domain.PhaseFailed {
			failed++
		}
	}
	assert.Equal(t, 3, failed)
}

func TestNewEngineValidation(t *testing.T) {
	f := newFixture(t)
	provider := func(context.Context, domain.TranscriptInput, Meta) (string, error) { return "", nil }
	fallback := func(domain.TranscriptInput) insightsOut { return insightsOut{} }

	_, err := NewEngine(WorkItem[domain.TranscriptInput, insightsOut]{Kind: "poem", Provider: provider, Fallback: fallback}, f.deps(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = NewEngine(WorkItem[domain.TranscriptInput, insightsOut]{Kind: domain.KindTranscriptAnalysis, Fallback: fallback}, f.deps(), nil)
	assert.ErrorIs(t, err, ErrNilProvider)

	_, err = NewEngine(WorkItem[domain.TranscriptInput, insightsOut]{Kind: domain.KindTranscriptAnalysis, Provider: provider}, f.deps(), nil)
	assert.ErrorIs(t, err, ErrNilFallback)

	_, err = NewEngine(WorkItem[domain.TranscriptInput, insightsOut]{
		Kind: domain.KindTranscriptAnalysis, Provider: provider, Fallback: fallback,
	}, Deps{DB: f.db}, nil)
	assert.ErrorIs(t, err, ErrNilStore)
}
