// Package asynqueue is the Redis-backed queue backend built on asynq. Each
// job is enqueued with the record's task handle as its asynq task id, so the
// inspector can answer handle state without a side table.
package asynqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/hibiken/asynq"
)

// Config holds options for the asynq backend.
type Config struct {
	Redis       asynq.RedisClientOpt
	Queue       string
	Concurrency int
	Retry       queue.RetryPolicy
	// Retention keeps completed tasks inspectable for this long.
	Retention time.Duration
	// PollInterval is how often scheduled retries are promoted. Zero keeps
	// the asynq default.
	PollInterval time.Duration
}

// Queue implements queue.Queue on asynq.
type Queue struct {
	cfg       Config
	client    *asynq.Client
	inspector *asynq.Inspector
	logger    *slog.Logger
}

var _ queue.Queue = (*Queue)(nil)

// New connects a client and an inspector to Redis. The server side is only
// created when Run is called.
func New(cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = queue.DefaultRetryPolicy()
	}
	return &Queue{
		cfg:       cfg,
		client:    asynq.NewClient(cfg.Redis),
		inspector: asynq.NewInspector(cfg.Redis),
		logger:    logger.With(slog.String("component", "asynq_queue"), slog.String("queue", cfg.Queue)),
	}
}

// Enqueue implements queue.Enqueuer.
func (q *Queue) Enqueue(ctx context.Context, job queue.Job, handle string) error {
	if err := job.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(q.cfg.Queue),
		asynq.TaskID(handle),
		asynq.MaxRetry(q.cfg.Retry.MaxAttempts - 1),
	}
	if q.cfg.Retention > 0 {
		opts = append(opts, asynq.Retention(q.cfg.Retention))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(job.TaskType(), payload), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("%w: %s", queue.ErrDuplicateHandle, handle)
		}
		return fmt.Errorf("enqueue task: %w", err)
	}

	q.logger.DebugContext(ctx, "task enqueued",
		slog.String("task_handle", info.ID),
		slog.String("kind", string(job.Kind)))
	return nil
}

// State implements queue.Inspector.
func (q *Queue) State(_ context.Context, handle string) (queue.HandleStatus, error) {
	info, err := q.inspector.GetTaskInfo(q.cfg.Queue, handle)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return queue.UnknownHandle(handle), nil
		}
		return queue.HandleStatus{}, fmt.Errorf("inspect task %s: %w", handle, err)
	}

	st := queue.HandleStatus{
		Handle:  handle,
		State:   MapState(info.State),
		Attempt: info.Retried + 1,
		Error:   info.LastErr,
	}
	st.Message = st.State.Message()
	return st, nil
}

// MapState translates an asynq task state into a handle state.
func MapState(s asynq.TaskState) queue.State {
	switch s {
	case asynq.TaskStateActive:
		return queue.StateProgress
	case asynq.TaskStateCompleted:
		return queue.StateSuccess
	case asynq.TaskStateArchived:
		return queue.StateFailure
	default:
		return queue.StatePending
	}
}

// Run implements queue.Consumer. It starts an asynq server and shuts it down
// when ctx is cancelled; in-flight tasks that do not finish in time return to
// Redis and are redelivered.
func (q *Queue) Run(ctx context.Context, h queue.HandlerFunc) error {
	if h == nil {
		return queue.ErrNoHandler
	}

	delay := q.cfg.Retry.Delay
	srv := asynq.NewServer(q.cfg.Redis, asynq.Config{
		Concurrency: q.cfg.Concurrency,
		Queues:      map[string]int{q.cfg.Queue: 1},
		RetryDelayFunc: func(int, error, *asynq.Task) time.Duration {
			return delay
		},
		DelayedTaskCheckInterval: q.cfg.PollInterval,
		Logger:                   &slogAdapter{log: q.logger},
	})

	if err := srv.Start(asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		return q.process(ctx, t, h)
	})); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	q.logger.Info("asynq consumer started", slog.Int("concurrency", q.cfg.Concurrency))

	<-ctx.Done()
	srv.Shutdown()
	q.logger.Info("asynq consumer stopped")
	return nil
}

func (q *Queue) process(ctx context.Context, t *asynq.Task, h queue.HandlerFunc) error {
	var job queue.Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("decode job: %v: %w", err, asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	err := h(ctx, job, retried+1)
	if err != nil && queue.IsPermanent(err) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// Close releases the client and inspector connections.
func (q *Queue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close())
}

type slogAdapter struct {
	log *slog.Logger
}

func (a *slogAdapter) Debug(args ...interface{}) { a.log.Debug(fmt.Sprint(args...)) }
func (a *slogAdapter) Info(args ...interface{})  { a.log.Info(fmt.Sprint(args...)) }
func (a *slogAdapter) Warn(args ...interface{})  { a.log.Warn(fmt.Sprint(args...)) }
func (a *slogAdapter) Error(args ...interface{}) { a.log.Error(fmt.Sprint(args...)) }

// Fatal logs at error level; asynq only calls it on unrecoverable startup
// failures, which Start already reports.
func (a *slogAdapter) Fatal(args ...interface{}) { a.log.Error(fmt.Sprint(args...)) }
