// Package testdb provides migrated databases for store and service tests.
// SQLite databases are always available; PostgreSQL tests run only when
// DATABASE_URL points at a reachable server.
package testdb

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/defineconsult/consult-api/internal/platform/database"
	"github.com/defineconsult/consult-api/internal/platform/sqlite"
	"github.com/stretchr/testify/require"
)

// EnvDatabaseURL names the variable that enables PostgreSQL tests.
const EnvDatabaseURL = "DATABASE_URL"

// Timeout bounds setup queries.
const Timeout = 10 * time.Second

// NewSQLite opens a fresh, migrated SQLite database in the test's temp dir.
// It is closed when the test ends.
func NewSQLite(t *testing.T) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	db, err := sqlite.Open(ctx, "file:"+filepath.Join(t.TempDir(), "consult.db"))
	require.NoError(t, err, "open sqlite")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite, database.MigrateUp, quietLogger()))
	return db
}

// NewPostgres connects to DATABASE_URL and applies migrations, skipping the
// test when the variable is unset. Tables are truncated on cleanup.
func NewPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set, skipping PostgreSQL test", EnvDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err, "open postgres")
	require.NoError(t, db.PingContext(ctx), "ping postgres at %s", database.MaskURL(dsn))
	require.NoError(t, database.Migrate(ctx, db, database.DriverPostgres, database.MigrateUp, quietLogger()))

	t.Cleanup(func() {
		_, _ = db.Exec(`TRUNCATE activity_log, work_records`)
		_ = db.Close()
	})
	return db
}

// WithTx runs fn inside a transaction that is always rolled back.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err, "begin transaction")
	defer func() { _ = tx.Rollback() }()

	fn(t, tx)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
