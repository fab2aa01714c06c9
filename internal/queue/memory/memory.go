// Package memory is an in-process queue backend: a buffered channel drained
// by a pool of worker goroutines, with fixed-delay retries scheduled on
// timers. Nothing survives a restart, so it serves tests and single-process
// development.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/defineconsult/consult-api/internal/queue"
)

// Config holds options for the in-process queue.
type Config struct {
	// Concurrency is the number of worker goroutines started by Run.
	// If zero or negative, defaults to 1.
	Concurrency int

	// BufferSize bounds the number of deliveries waiting for a worker.
	BufferSize int

	Retry queue.RetryPolicy
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 2,
		BufferSize:  100,
		Retry:       queue.DefaultRetryPolicy(),
	}
}

type delivery struct {
	job     queue.Job
	handle  string
	attempt int
}

// Queue implements queue.Queue in memory.
type Queue struct {
	cfg        Config
	deliveries chan delivery
	done       chan struct{}
	logger     *slog.Logger

	mu     sync.Mutex
	states map[string]queue.HandleStatus
	timers map[string]*time.Timer
	// parked holds retries that came due while the buffer was full.
	parked []delivery
	closed bool
}

var _ queue.Queue = (*Queue)(nil)

// New creates an in-process queue.
func New(cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "memory_queue"))

	if cfg.Concurrency <= 0 {
		logger.Warn("invalid worker count specified, using default",
			slog.Int("specified_count", cfg.Concurrency),
			slog.Int("default_count", 1))
		cfg.Concurrency = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = queue.DefaultRetryPolicy()
	}

	return &Queue{
		cfg:        cfg,
		deliveries: make(chan delivery, cfg.BufferSize),
		done:       make(chan struct{}),
		logger:     logger,
		states:     make(map[string]queue.HandleStatus),
		timers:     make(map[string]*time.Timer),
	}
}

// Enqueue implements queue.Enqueuer. It never blocks: a full buffer is an error.
func (q *Queue) Enqueue(ctx context.Context, job queue.Job, handle string) error {
	if err := job.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.ErrQueueClosed
	}
	if _, exists := q.states[handle]; exists {
		return fmt.Errorf("%w: %s", queue.ErrDuplicateHandle, handle)
	}

	select {
	case q.deliveries <- delivery{job: job, handle: handle, attempt: 1}:
		q.states[handle] = queue.HandleStatus{Handle: handle, State: queue.StatePending, Attempt: 1}
		q.logger.DebugContext(ctx, "task enqueued",
			slog.String("task_handle", handle),
			slog.String("kind", string(job.Kind)),
			slog.Int("queue_len", len(q.deliveries)),
			slog.Int("queue_cap", cap(q.deliveries)))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", queue.ErrQueueFull, cap(q.deliveries))
	}
}

// State implements queue.Inspector.
func (q *Queue) State(_ context.Context, handle string) (queue.HandleStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st, ok := q.states[handle]
	if !ok {
		return queue.UnknownHandle(handle), nil
	}
	st.Message = st.State.Message()
	return st, nil
}

// Run implements queue.Consumer. It starts the worker pool and blocks until
// ctx is cancelled or the queue is closed, then waits for in-flight handlers.
func (q *Queue) Run(ctx context.Context, h queue.HandlerFunc) error {
	if h == nil {
		return queue.ErrNoHandler
	}

	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.worker(ctx, id, h)
		}(i)
	}
	q.logger.Info("memory queue consumer started", slog.Int("workers", q.cfg.Concurrency))

	wg.Wait()
	q.logger.Info("memory queue consumer stopped")
	return nil
}

// Close stops accepting work and cancels pending retries.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	for handle, t := range q.timers {
		t.Stop()
		delete(q.timers, handle)
	}
	q.parked = nil
	close(q.done)
	q.logger.Info("task queue closed")
	return nil
}

func (q *Queue) worker(ctx context.Context, id int, h queue.HandlerFunc) {
	log := q.logger.With(slog.Int("worker_id", id))
	log.Debug("starting worker")

	for {
		q.unpark()
		select {
		case <-ctx.Done():
			log.Debug("stopping worker")
			return
		case <-q.done:
			log.Debug("queue closed, stopping worker")
			return
		case d := <-q.deliveries:
			// In-flight work finishes even when shutdown begins.
			q.process(context.WithoutCancel(ctx), log, d, h)
		}
	}
}

func (q *Queue) process(ctx context.Context, log *slog.Logger, d delivery, h queue.HandlerFunc) {
	log = log.With(
		slog.String("task_handle", d.handle),
		slog.String("kind", string(d.job.Kind)),
		slog.Int("attempt", d.attempt))

	q.setState(d.handle, queue.HandleStatus{Handle: d.handle, State: queue.StateProgress, Attempt: d.attempt})

	err := invoke(ctx, h, d)
	switch {
	case err == nil:
		log.Debug("task completed")
		q.setState(d.handle, queue.HandleStatus{Handle: d.handle, State: queue.StateSuccess, Attempt: d.attempt})

	case q.cfg.Retry.ShouldRetry(d.attempt, err):
		log.Warn("task failed, scheduling retry",
			slog.String("error", err.Error()),
			slog.Duration("delay", q.cfg.Retry.Delay))
		q.setState(d.handle, queue.HandleStatus{
			Handle: d.handle, State: queue.StatePending, Attempt: d.attempt, Error: err.Error(),
		})
		q.scheduleRetry(delivery{job: d.job, handle: d.handle, attempt: d.attempt + 1})

	default:
		log.Error("task failed permanently",
			slog.String("error", err.Error()),
			slog.Bool("permanent", queue.IsPermanent(err)))
		q.setState(d.handle, queue.HandleStatus{
			Handle: d.handle, State: queue.StateFailure, Attempt: d.attempt, Error: err.Error(),
		})
	}
}

func invoke(ctx context.Context, h queue.HandlerFunc, d delivery) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task handler panicked: %v", p)
		}
	}()
	return h(ctx, d.job, d.attempt)
}

func (q *Queue) scheduleRetry(d delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.timers[d.handle] = time.AfterFunc(q.cfg.Retry.Delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		delete(q.timers, d.handle)
		if q.closed {
			return
		}
		select {
		case q.deliveries <- d:
		default:
			q.parked = append(q.parked, d)
		}
	})
}

// unpark moves parked retries into free buffer slots.
func (q *Queue) unpark() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.parked) > 0 {
		select {
		case q.deliveries <- q.parked[0]:
			q.parked = q.parked[1:]
		default:
			return
		}
	}
}

// parkedLen reports how many retries are waiting for buffer space.
func (q *Queue) parkedLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.parked)
}

func (q *Queue) setState(handle string, st queue.HandleStatus) {
	q.mu.Lock()
	q.states[handle] = st
	q.mu.Unlock()
}
