// Package main implements the entry point for the Define Consult API server,
// which accepts analysis requests for the consulting agents, records their
// lifecycle, and hands the LLM work to a task queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, reset, status, version) and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *migrateCmd); err != nil {
		log.Fatalf("consult-api: %v", err)
	}
}

func run(ctx context.Context, migrateCmd string) error {
	cfg, logger, err := initializeApp()
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		return handleMigrations(ctx, cfg, migrateCmd, logger)
	}

	db, err := setupAppDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg, logger, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	if err := app.Run(ctx); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-migrate command]\n", os.Args[0])
		flag.PrintDefaults()
	}
}
