package asynqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/defineconsult/consult-api/internal/domain"
	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, maxAttempts int) *Queue {
	t.Helper()
	s := miniredis.RunT(t)
	q := New(Config{
		Redis:        asynq.RedisClientOpt{Addr: s.Addr()},
		Queue:        "consult_test",
		Concurrency:  2,
		Retry:        queue.RetryPolicy{Delay: 0, MaxAttempts: maxAttempts},
		Retention:    time.Hour,
		PollInterval: 100 * time.Millisecond,
	}, nil)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func runConsumer(t *testing.T, q *Queue, h queue.HandlerFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, q.Run(ctx, h))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitForState(t *testing.T, q *Queue, handle string, want queue.State) queue.HandleStatus {
	t.Helper()
	var st queue.HandleStatus
	require.Eventually(t, func() bool {
		var err error
		st, err = q.State(context.Background(), handle)
		return err == nil && st.State == want
	}, 10*time.Second, 50*time.Millisecond, "handle %s never reached %s (last %s)", handle, want, st.State)
	return st
}

func newJob() queue.Job {
	return queue.Job{Kind: domain.KindTranscriptAnalysis, RecordID: uuid.New()}
}

func TestMapState(t *testing.T) {
	t.Parallel()

	tests := map[asynq.TaskState]queue.State{
		asynq.TaskStatePending:     queue.StatePending,
		asynq.TaskStateScheduled:   queue.StatePending,
		asynq.TaskStateRetry:       queue.StatePending,
		asynq.TaskStateAggregating: queue.StatePending,
		asynq.TaskStateActive:      queue.StateProgress,
		asynq.TaskStateCompleted:   queue.StateSuccess,
		asynq.TaskStateArchived:    queue.StateFailure,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapState(in), in.String())
	}
}

func TestEnqueueAndInspect(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()
	handle := domain.NewTaskHandle()

	st, err := q.State(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, queue.StatePending, st.State, "unknown handles read as pending")

	require.NoError(t, q.Enqueue(ctx, newJob(), handle))
	st, err = q.State(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, queue.StatePending, st.State)
	assert.Equal(t, 1, st.Attempt)

	assert.ErrorIs(t, q.Enqueue(ctx, newJob(), handle), queue.ErrDuplicateHandle)
	assert.ErrorIs(t, q.Enqueue(ctx, queue.Job{Kind: "poem"}, "x"), domain.ErrInvalidKind)
}

func TestConsumerSuccess(t *testing.T) {
	q := newTestQueue(t, 3)
	job := newJob()
	handle := domain.NewTaskHandle()

	received := make(chan queue.Job, 1)
	runConsumer(t, q, func(ctx context.Context, j queue.Job, attempt int) error {
		assert.Equal(t, 1, attempt)
		received <- j
		return nil
	})

	require.NoError(t, q.Enqueue(context.Background(), job, handle))
	select {
	case got := <-received:
		assert.Equal(t, job, got)
	case <-time.After(10 * time.Second):
		t.Fatal("job was not delivered")
	}
	waitForState(t, q, handle, queue.StateSuccess)
}

func TestConsumerRetriesThenArchives(t *testing.T) {
	q := newTestQueue(t, 2)
	handle := domain.NewTaskHandle()

	var mu sync.Mutex
	var attempts []int
	runConsumer(t, q, func(ctx context.Context, j queue.Job, attempt int) error {
		mu.Lock()
		attempts = append(attempts, attempt)
		mu.Unlock()
		return errors.New("provider unavailable")
	})

	require.NoError(t, q.Enqueue(context.Background(), newJob(), handle))
	st := waitForState(t, q, handle, queue.StateFailure)
	assert.Contains(t, st.Error, "provider unavailable")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestConsumerPermanentError(t *testing.T) {
	q := newTestQueue(t, 3)
	handle := domain.NewTaskHandle()

	var mu sync.Mutex
	calls := 0
	runConsumer(t, q, func(ctx context.Context, j queue.Job, attempt int) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return queue.Permanent(errors.New("record missing"))
	})

	require.NoError(t, q.Enqueue(context.Background(), newJob(), handle))
	waitForState(t, q, handle, queue.StateFailure)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestRunRequiresHandler(t *testing.T) {
	q := newTestQueue(t, 3)
	assert.ErrorIs(t, q.Run(context.Background(), nil), queue.ErrNoHandler)
}
