// Package rabbitmq is the AMQP queue backend. Three durable queues implement
// the retry policy without broker plugins: the main queue, a ".retry" queue
// whose message TTL equals the retry delay and which dead-letters back into
// main, and a ".dlq" queue for exhausted or poisoned deliveries. Handle state
// lives in Redis because the broker cannot be queried by message id.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/defineconsult/consult-api/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AttemptHeader carries the 1-based attempt number on every message.
const AttemptHeader = "x-attempt"

const publishTimeout = 5 * time.Second

// ErrDeliveriesClosed is returned by Run when the broker stops delivering
// before the context is cancelled, usually because the connection dropped.
var ErrDeliveriesClosed = errors.New("rabbitmq consumer: delivery channel closed")

// publisher is the part of *amqp.Channel used to publish.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Config holds options for the RabbitMQ backend.
type Config struct {
	URL         string
	Queue       string
	Concurrency int
	Retry       queue.RetryPolicy
}

// Queue implements queue.Queue on RabbitMQ.
type Queue struct {
	cfg     Config
	conn    *amqp.Connection
	tracker StateTracker
	logger  *slog.Logger

	pubMu sync.Mutex
	pubCh publisher
}

var _ queue.Queue = (*Queue)(nil)

// Dial connects to the broker and declares the queue topology.
func Dial(cfg Config, tracker StateTracker, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = queue.DefaultRetryPolicy()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := declareTopology(ch, cfg.Queue, cfg.Retry.Delay); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Queue{
		cfg:     cfg,
		conn:    conn,
		tracker: tracker,
		logger:  logger.With(slog.String("component", "rabbitmq_queue"), slog.String("queue", cfg.Queue)),
		pubCh:   ch,
	}, nil
}

// QueueNames returns the main, retry and dead-letter queue names for name.
func QueueNames(name string) (main, retry, dlq string) {
	return name, name + ".retry", name + ".dlq"
}

// topologyArgs returns the declare arguments for the retry and main queues.
func topologyArgs(name string, delay time.Duration) (retryArgs, mainArgs amqp.Table) {
	mainQ, _, dlqQ := QueueNames(name)
	retryArgs = amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": mainQ,
	}
	mainArgs = amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqQ,
	}
	return retryArgs, mainArgs
}

func declareTopology(ch *amqp.Channel, name string, delay time.Duration) error {
	mainQ, retryQ, dlqQ := QueueNames(name)
	retryArgs, mainArgs := topologyArgs(name, delay)

	if _, err := ch.QueueDeclare(dlqQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", dlqQ, err)
	}
	if _, err := ch.QueueDeclare(retryQ, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("declare %s: %w", retryQ, err)
	}
	if _, err := ch.QueueDeclare(mainQ, true, false, false, false, mainArgs); err != nil {
		return fmt.Errorf("declare %s: %w", mainQ, err)
	}
	return nil
}

// Enqueue implements queue.Enqueuer.
func (q *Queue) Enqueue(ctx context.Context, job queue.Job, handle string) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if err := q.tracker.Claim(ctx, handle); err != nil {
		return err
	}
	if err := q.publish(ctx, q.cfg.Queue, job, handle, 1); err != nil {
		if relErr := q.tracker.Release(ctx, handle); relErr != nil {
			q.logger.WarnContext(ctx, "failed to release handle after publish error",
				slog.String("task_handle", handle),
				slog.String("error", relErr.Error()))
		}
		return err
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, routingKey string, job queue.Job, handle string, attempt int) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	err = q.pubCh.PublishWithContext(cctx, "", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    handle,
		Type:         job.TaskType(),
		Headers:      amqp.Table{AttemptHeader: int32(attempt)},
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}
	return nil
}

// State implements queue.Inspector.
func (q *Queue) State(ctx context.Context, handle string) (queue.HandleStatus, error) {
	return q.tracker.Get(ctx, handle)
}

// Run implements queue.Consumer. Unacknowledged deliveries are returned to
// the broker when ctx is cancelled. Losing the channel or connection while
// ctx is live ends Run with ErrDeliveriesClosed.
func (q *Queue) Run(ctx context.Context, h queue.HandlerFunc) error {
	if h == nil {
		return queue.ErrNoHandler
	}

	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbit channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(q.cfg.Concurrency, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	connClosed := q.conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	msgs, err := ch.ConsumeWithContext(ctx, q.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	q.logger.Info("rabbitmq consumer started", slog.Int("concurrency", q.cfg.Concurrency))

	err = q.consume(ctx, msgs, h, chClosed, connClosed)
	if err != nil {
		q.logger.Error("rabbitmq consumer lost its deliveries", slog.String("error", err.Error()))
		return err
	}
	q.logger.Info("rabbitmq consumer stopped")
	return nil
}

// consume drains msgs with the configured number of goroutines. When msgs
// closes while ctx is still live it returns ErrDeliveriesClosed, wrapping the
// first close reason reported on closed.
func (q *Queue) consume(
	ctx context.Context,
	msgs <-chan amqp.Delivery,
	h queue.HandlerFunc,
	closed ...<-chan *amqp.Error,
) error {
	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for d := range msgs {
				q.process(ctx, id, d, h)
			}
		}(i)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	for _, c := range closed {
		select {
		case reason, ok := <-c:
			if ok && reason != nil {
				return fmt.Errorf("%w: %w", ErrDeliveriesClosed, reason)
			}
		default:
		}
	}
	return ErrDeliveriesClosed
}

func (q *Queue) process(ctx context.Context, workerID int, d amqp.Delivery, h queue.HandlerFunc) {
	handle := d.MessageId
	attempt := AttemptFromHeaders(d.Headers)
	log := q.logger.With(
		slog.Int("worker_id", workerID),
		slog.String("task_handle", handle),
		slog.Int("attempt", attempt))

	var job queue.Job
	if err := json.Unmarshal(d.Body, &job); err != nil || job.Validate() != nil {
		log.Error("bad message, dead-lettering", slog.Any("error", err))
		_ = d.Nack(false, false)
		return
	}

	q.track(ctx, log, queue.HandleStatus{Handle: handle, State: queue.StateProgress, Attempt: attempt})

	err := h(ctx, job, attempt)
	if ctx.Err() != nil {
		// Shutdown: leave the delivery unacked so the broker redelivers it.
		return
	}

	switch {
	case err == nil:
		q.track(ctx, log, queue.HandleStatus{Handle: handle, State: queue.StateSuccess, Attempt: attempt})
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("ack failed", slog.String("error", ackErr.Error()))
		}

	case q.cfg.Retry.ShouldRetry(attempt, err):
		_, retryQ, _ := QueueNames(q.cfg.Queue)
		if pubErr := q.publish(ctx, retryQ, job, handle, attempt+1); pubErr != nil {
			log.Error("failed to schedule retry, requeueing", slog.String("error", pubErr.Error()))
			_ = d.Nack(false, true)
			return
		}
		log.Warn("task failed, retry scheduled",
			slog.String("error", err.Error()),
			slog.Duration("delay", q.cfg.Retry.Delay))
		q.track(ctx, log, queue.HandleStatus{
			Handle: handle, State: queue.StatePending, Attempt: attempt, Error: err.Error(),
		})
		_ = d.Ack(false)

	default:
		log.Error("task failed permanently",
			slog.String("error", err.Error()),
			slog.Bool("permanent", queue.IsPermanent(err)))
		q.track(ctx, log, queue.HandleStatus{
			Handle: handle, State: queue.StateFailure, Attempt: attempt, Error: err.Error(),
		})
		_ = d.Nack(false, false)
	}
}

func (q *Queue) track(ctx context.Context, log *slog.Logger, st queue.HandleStatus) {
	if err := q.tracker.Set(ctx, st); err != nil {
		log.Warn("failed to record handle state", slog.String("error", err.Error()))
	}
}

// AttemptFromHeaders reads the attempt header, defaulting to 1.
func AttemptFromHeaders(h amqp.Table) int {
	var n int
	switch v := h[AttemptHeader].(type) {
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case int:
		n = v
	case int16:
		n = int(v)
	case int8:
		n = int(v)
	}
	if n < 1 {
		return 1
	}
	return n
}

// Close closes the publishing channel and the connection.
func (q *Queue) Close() error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	return errors.Join(q.pubCh.Close(), q.conn.Close())
}
