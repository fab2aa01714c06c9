package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/defineconsult/consult-api/internal/config"
	"github.com/defineconsult/consult-api/internal/platform/database"
	"github.com/defineconsult/consult-api/internal/platform/logger"
)

// initializeApp loads configuration and installs the process logger.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("queue_backend", cfg.Queue.Backend),
		slog.Any("llm_providers", cfg.LLM.Providers))
	return cfg, l, nil
}

// setupAppDatabase opens the record store and, when configured, applies
// pending migrations before the server accepts traffic.
func setupAppDatabase(ctx context.Context, cfg *config.Config, l *slog.Logger) (*sql.DB, error) {
	db, err := database.Open(ctx, cfg.Database, l)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, cfg.Database.Driver, database.MigrateUp, l); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}
