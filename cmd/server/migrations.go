package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/defineconsult/consult-api/internal/config"
	"github.com/defineconsult/consult-api/internal/platform/database"
)

// handleMigrations runs a single goose command and closes the connection.
// It is called from main when -migrate is set.
func handleMigrations(ctx context.Context, cfg *config.Config, command string, l *slog.Logger) error {
	switch command {
	case database.MigrateUp, database.MigrateDown, database.MigrateReset,
		database.MigrateStatus, database.MigrateVersion:
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}

	db, err := database.Open(ctx, cfg.Database, l)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			l.Error("error closing database connection", slog.String("error", cerr.Error()))
		}
	}()

	return database.Migrate(ctx, db, cfg.Database.Driver, command, l)
}
