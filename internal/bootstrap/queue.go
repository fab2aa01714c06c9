package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/defineconsult/consult-api/internal/config"
	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/defineconsult/consult-api/internal/queue/asynqueue"
	"github.com/defineconsult/consult-api/internal/queue/memory"
	"github.com/defineconsult/consult-api/internal/queue/rabbitmq"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Queue backends accepted in queue.backend.
const (
	BackendMemory   = "memory"
	BackendAsynq    = "asynq"
	BackendRabbitMQ = "rabbitmq"
)

// RetryPolicy converts the configured retry settings.
func RetryPolicy(cfg config.QueueConfig) queue.RetryPolicy {
	return queue.RetryPolicy{Delay: cfg.RetryDelay, MaxAttempts: cfg.MaxAttempts}
}

// NewQueue opens the configured backend. The returned queue's Close releases
// every connection it owns.
func NewQueue(ctx context.Context, cfg config.QueueConfig, log *slog.Logger) (queue.Queue, error) {
	retry := RetryPolicy(cfg)

	switch cfg.Backend {
	case BackendMemory:
		return memory.New(memory.Config{
			Concurrency: cfg.Concurrency,
			BufferSize:  cfg.BufferSize,
			Retry:       retry,
		}, log), nil

	case BackendAsynq:
		return asynqueue.New(asynqueue.Config{
			Redis: asynq.RedisClientOpt{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			},
			Queue:       cfg.Name,
			Concurrency: cfg.Concurrency,
			Retry:       retry,
			Retention:   cfg.Retention,
		}, log), nil

	case BackendRabbitMQ:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect to redis state store: %w", err)
		}
		q, err := rabbitmq.Dial(rabbitmq.Config{
			URL:         cfg.AMQPURL,
			Queue:       cfg.Name,
			Concurrency: cfg.Concurrency,
			Retry:       retry,
		}, rabbitmq.NewRedisStateTracker(rdb, cfg.Retention), log)
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return &ownedQueue{Queue: q, close: rdb.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Backend)
	}
}

// ownedQueue closes an extra resource along with the queue.
type ownedQueue struct {
	queue.Queue
	close func() error
}

func (q *ownedQueue) Close() error {
	return errors.Join(q.Queue.Close(), q.close())
}
