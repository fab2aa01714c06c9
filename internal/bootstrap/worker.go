package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/defineconsult/consult-api/internal/agent"
	"github.com/defineconsult/consult-api/internal/llm"
	"github.com/defineconsult/consult-api/internal/platform/database"
	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/defineconsult/consult-api/internal/task"
)

// NewDispatcher builds one engine per agent over client and returns a
// registry whose Dispatch is the queue handler.
func NewDispatcher(client llm.Client, db *sql.DB, stores database.Stores, log *slog.Logger) (*task.Registry, error) {
	handlers, err := agent.Handlers(client, task.Deps{
		DB:       db,
		Records:  stores.Records,
		Activity: stores.Activity,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build agent handlers: %w", err)
	}
	return task.NewRegistry(handlers...), nil
}

// ErrWorkerStopped is returned by RunWorker when the consumer returns while
// ctx is still live.
var ErrWorkerStopped = errors.New("queue consumer stopped before shutdown")

// RunWorker consumes q until ctx is cancelled. A consumer that ends early is
// an error even if it reported none.
func RunWorker(ctx context.Context, q queue.Consumer, registry *task.Registry, log *slog.Logger) error {
	kinds := make([]string, 0)
	for _, k := range registry.Kinds() {
		kinds = append(kinds, string(k))
	}
	log.Info("worker starting", slog.Any("kinds", kinds))
	if err := q.Run(ctx, registry.Dispatch); err != nil {
		return fmt.Errorf("queue consumer: %w", err)
	}
	if ctx.Err() == nil {
		return ErrWorkerStopped
	}
	log.Info("worker stopped")
	return nil
}
