// Package main runs the consult task consumers without the HTTP server.
// Pair it with a server started with queue.embedded_worker=false and a
// shared queue backend (asynq or rabbitmq).
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/defineconsult/consult-api/internal/bootstrap"
	"github.com/defineconsult/consult-api/internal/config"
	"github.com/defineconsult/consult-api/internal/platform/database"
	"github.com/defineconsult/consult-api/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	l, err := logger.Setup(cfg.Server)
	if err != nil {
		log.Fatalf("failed to set up logger: %v", err)
	}

	if err := run(ctx, cfg, l); err != nil {
		l.Error("worker exited with error", slog.String("error", err.Error()))
		log.Fatalf("consult-worker: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	if cfg.Queue.Backend == bootstrap.BackendMemory {
		l.Warn("memory queue is process local; this worker only sees its own jobs")
	}

	db, err := database.Open(ctx, cfg.Database, l)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	stores, err := database.NewStores(cfg.Database.Driver, db, l)
	if err != nil {
		return err
	}

	chain, err := bootstrap.NewLLM(ctx, cfg.LLM, l)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM providers: %w", err)
	}

	registry, err := bootstrap.NewDispatcher(chain, db, stores, l)
	if err != nil {
		return err
	}

	q, err := bootstrap.NewQueue(ctx, cfg.Queue, l)
	if err != nil {
		return fmt.Errorf("failed to initialize task queue: %w", err)
	}
	defer func() {
		if cerr := q.Close(); cerr != nil {
			l.Error("error closing task queue", slog.String("error", cerr.Error()))
		}
	}()

	l.Info("worker initialized",
		slog.String("queue_backend", cfg.Queue.Backend),
		slog.String("providers", chain.Name()),
		slog.Int("concurrency", cfg.Queue.Concurrency))
	return bootstrap.RunWorker(ctx, q, registry, l)
}
