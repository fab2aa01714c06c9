package database

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/defineconsult/consult-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "postgres://user:%2A%2A%2A%2A@db:5432/consult",
		MaskURL("postgres://user:secret@db:5432/consult"))
	assert.Equal(t, "file:consult.db", MaskURL("file:consult.db"))
	assert.Equal(t, "invalid-url", MaskURL("postgres://user:pa ss@%zz"))
}

func TestOpenAndMigrateSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.DatabaseConfig{
		Driver: DriverSQLite,
		URL:    "file:" + filepath.Join(t.TempDir(), "consult.db"),
	}

	db, err := Open(ctx, cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, DriverSQLite, MigrateUp, slog.Default()))
	require.NoError(t, Migrate(ctx, db, DriverSQLite, MigrateStatus, slog.Default()))

	var tables int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('work_records', 'activity_log')`,
	).Scan(&tables))
	assert.Equal(t, 2, tables)

	require.NoError(t, Migrate(ctx, db, DriverSQLite, MigrateReset, slog.Default()))
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('work_records', 'activity_log')`,
	).Scan(&tables))
	assert.Zero(t, tables)

	stores, err := NewStores(DriverSQLite, db, slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, stores.Records)
	assert.NotNil(t, stores.Activity)
}

func TestUnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "mysql"}, slog.Default())
	assert.Error(t, err)

	_, err = NewStores("mysql", nil, slog.Default())
	assert.Error(t, err)

	assert.Error(t, Migrate(context.Background(), nil, "mysql", MigrateUp, slog.Default()))
}
