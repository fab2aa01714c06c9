// Package database opens the configured SQL backend, applies its embedded
// goose migrations and constructs the matching store implementations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"time"

	"github.com/defineconsult/consult-api/internal/config"
	"github.com/defineconsult/consult-api/internal/platform/postgres"
	"github.com/defineconsult/consult-api/internal/platform/sqlite"
	"github.com/defineconsult/consult-api/internal/store"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// Driver names accepted in database.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Stores bundles the store implementations for one backend.
type Stores struct {
	Records  store.WorkRecordStore
	Activity store.ActivityLogStore
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, error) {
	log = log.With(slog.String("component", "database"), slog.String("driver", cfg.Driver))

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres:
		db, err = openPostgres(ctx, cfg.URL)
	case DriverSQLite:
		db, err = sqlite.Open(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		log.Error("database connection failed",
			slog.String("url", MaskURL(cfg.URL)),
			slog.String("error", err.Error()))
		return nil, err
	}

	log.Info("database connection established", slog.String("url", MaskURL(cfg.URL)))
	return db, nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewStores builds the store implementations for driver over db.
func NewStores(driver string, db *sql.DB, log *slog.Logger) (Stores, error) {
	switch driver {
	case DriverPostgres:
		return Stores{
			Records:  postgres.NewPostgresWorkRecordStore(db, log),
			Activity: postgres.NewPostgresActivityLogStore(db, log),
		}, nil
	case DriverSQLite:
		return Stores{
			Records:  sqlite.NewWorkRecordStore(db, log),
			Activity: sqlite.NewActivityLogStore(db, log),
		}, nil
	default:
		return Stores{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func migrationSource(driver string) (dialect string, fsys fs.FS, err error) {
	switch driver {
	case DriverPostgres:
		return "postgres", postgres.Migrations(), nil
	case DriverSQLite:
		return "sqlite3", sqlite.Migrations(), nil
	default:
		return "", nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// MaskURL hides the password component of a connection URL for logging.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	if u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}
