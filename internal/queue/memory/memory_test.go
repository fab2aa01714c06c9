package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob() queue.Job {
	return queue.Job{Kind: domain.KindTranscriptAnalysis, RecordID: uuid.New()}
}

func fastConfig() Config {
	return Config{Concurrency: 2, BufferSize: 10, Retry: queue.RetryPolicy{Delay: 0, MaxAttempts: 3}}
}

// startConsumer runs q with h and stops it when the test ends.
func startConsumer(t *testing.T, q *Queue, h queue.HandlerFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx, h)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = q.Close()
	})
}

func waitForState(t *testing.T, q *Queue, handle string, want queue.State) queue.HandleStatus {
	t.Helper()
	var st queue.HandleStatus
	require.Eventually(t, func() bool {
		st, _ = q.State(context.Background(), handle)
		return st.State == want
	}, 2*time.Second, 5*time.Millisecond, "handle %s never reached %s", handle, want)
	return st
}

func TestQueueDeliversJob(t *testing.T) {
	t.Parallel()

	q := New(fastConfig(), nil)
	job := newJob()

	var got queue.Job
	var mu sync.Mutex
	startConsumer(t, q, func(ctx context.Context, j queue.Job, attempt int) error {
		mu.Lock()
		defer mu.Unlock()
		got = j
		assert.Equal(t, 1, attempt)
		return nil
	})

	require.NoError(t, q.Enqueue(context.Background(), job, "h-1"))
	st := waitForState(t, q, "h-1", queue.StateSuccess)
	assert.Equal(t, "Task completed successfully", st.Message)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, job, got)
}

func TestQueueRetriesUntilExhausted(t *testing.T) {
	t.Parallel()

	q := New(fastConfig(), nil)
	var attempts []int
	var mu sync.Mutex
	startConsumer(t, q, func(ctx context.Context, j queue.Job, attempt int) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, attempt)
		return errors.New("provider unavailable")
	})

	require.NoError(t, q.Enqueue(context.Background(), newJob(), "h-retry"))
	st := waitForState(t, q, "h-retry", queue.StateFailure)
	assert.Equal(t, 3, st.Attempt)
	assert.Equal(t, "provider unavailable", st.Error)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestQueueRetrySucceeds(t *testing.T) {
	t.Parallel()

	q := New(fastConfig(), nil)
	var calls atomic.Int32
	startConsumer(t, q, func(ctx context.Context, j queue.Job, attempt int) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, q.Enqueue(context.Background(), newJob(), "h-flaky"))
	st := waitForState(t, q, "h-flaky", queue.StateSuccess)
	assert.Equal(t, 2, st.Attempt)
}

func TestQueuePermanentErrorSkipsRetry(t *testing.T) {
	t.Parallel()

	q := New(fastConfig(), nil)
	var calls atomic.Int32
	startConsumer(t, q, func(ctx context.Context, j queue.Job, attempt int) error {
		calls.Add(1)
		return queue.Permanent(errors.New("record missing"))
	})

	require.NoError(t, q.Enqueue(context.Background(), newJob(), "h-perm"))
	waitForState(t, q, "h-perm", queue.StateFailure)
	assert.EqualValues(t, 1, calls.Load())
}

func TestQueueRecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 1
	q := New(cfg, nil)
	startConsumer(t, q, func(ctx context.Context, j queue.Job, attempt int) error {
		panic("boom")
	})

	require.NoError(t, q.Enqueue(context.Background(), newJob(), "h-panic"))
	st := waitForState(t, q, "h-panic", queue.StateFailure)
	assert.Contains(t, st.Error, "panicked")
}

func TestQueueEnqueueErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(Config{Concurrency: 1, BufferSize: 1}, nil)

	require.NoError(t, q.Enqueue(ctx, newJob(), "a"))
	assert.ErrorIs(t, q.Enqueue(ctx, newJob(), "a"), queue.ErrDuplicateHandle)
	assert.ErrorIs(t, q.Enqueue(ctx, newJob(), "b"), queue.ErrQueueFull)
	assert.ErrorIs(t, q.Enqueue(ctx, queue.Job{Kind: "poem", RecordID: uuid.New()}, "c"), domain.ErrInvalidKind)

	st, err := q.State(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, queue.StatePending, st.State)

	st, err = q.State(ctx, "never-seen")
	require.NoError(t, err)
	assert.Equal(t, queue.StatePending, st.State)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Enqueue(ctx, newJob(), "d"), queue.ErrQueueClosed)
	assert.ErrorIs(t, q.Run(ctx, nil), queue.ErrNoHandler)
}

func TestQueueParksRetriesWhenBufferFull(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(Config{Concurrency: 1, BufferSize: 1, Retry: queue.RetryPolicy{Delay: 0, MaxAttempts: 2}}, nil)
	require.NoError(t, q.Enqueue(ctx, newJob(), "a"))

	failing := func(context.Context, queue.Job, int) error { return errors.New("provider down") }
	q.process(ctx, q.logger, delivery{job: newJob(), handle: "b", attempt: 1}, failing)

	require.Eventually(t, func() bool { return q.parkedLen() == 1 }, 2*time.Second, 5*time.Millisecond)

	startConsumer(t, q, func(context.Context, queue.Job, int) error { return nil })

	waitForState(t, q, "a", queue.StateSuccess)
	st := waitForState(t, q, "b", queue.StateSuccess)
	assert.Equal(t, 2, st.Attempt)
	assert.Zero(t, q.parkedLen())
}

func TestQueueCloseDropsParkedRetries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(Config{Concurrency: 1, BufferSize: 1, Retry: queue.RetryPolicy{Delay: 0, MaxAttempts: 2}}, nil)
	require.NoError(t, q.Enqueue(ctx, newJob(), "a"))

	failing := func(context.Context, queue.Job, int) error { return errors.New("provider down") }
	q.process(ctx, q.logger, delivery{job: newJob(), handle: "b", attempt: 1}, failing)
	require.Eventually(t, func() bool { return q.parkedLen() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, q.Close())
	assert.Zero(t, q.parkedLen())
}

func TestQueueRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := New(fastConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, func(context.Context, queue.Job, int) error { return nil }) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
