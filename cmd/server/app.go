package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/defineconsult/consult-api/internal/bootstrap"
	"github.com/defineconsult/consult-api/internal/config"
	"github.com/defineconsult/consult-api/internal/llm"
	"github.com/defineconsult/consult-api/internal/platform/database"
	"github.com/defineconsult/consult-api/internal/queue"
	"github.com/defineconsult/consult-api/internal/service"
	"github.com/defineconsult/consult-api/internal/service/auth"
	"github.com/defineconsult/consult-api/internal/task"
	"golang.org/x/sync/errgroup"
)

// application holds the shared dependencies of the server process and owns
// their cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	stores database.Stores

	jwtService     auth.JWTService
	llm            llm.Client
	queue          queue.Queue
	dispatcher     *task.Registry
	consultService service.ConsultService
}

// newApplication wires every dependency. The database connection must be
// established by the caller; cleanup closes it.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		slog.Int("token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes))

	app.stores, err = database.NewStores(cfg.Database.Driver, db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize stores: %w", err)
	}

	chain, err := bootstrap.NewLLM(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM providers: %w", err)
	}
	app.llm = chain
	logger.Info("LLM provider chain initialized", slog.String("providers", chain.Name()))

	app.queue, err = bootstrap.NewQueue(ctx, cfg.Queue, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task queue: %w", err)
	}

	app.dispatcher, err = bootstrap.NewDispatcher(app.llm, db, app.stores, logger)
	if err != nil {
		app.closeQueue()
		return nil, err
	}

	app.consultService, err = service.NewConsultService(db, app.stores.Records, app.stores.Activity, app.queue, logger)
	if err != nil {
		app.closeQueue()
		return nil, fmt.Errorf("failed to create consult service: %w", err)
	}

	logger.Info("application initialized successfully",
		slog.String("queue_backend", cfg.Queue.Backend),
		slog.Bool("embedded_worker", cfg.Queue.EmbeddedWorker))
	return app, nil
}

// Run serves HTTP, and the task queue when the worker is embedded, until
// ctx is cancelled or either fails.
func (app *application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := app.newHTTPServer(app.setupRouter())
	g.Go(func() error {
		return app.startHTTPServer(gctx, srv)
	})

	if app.config.Queue.EmbeddedWorker {
		g.Go(func() error {
			return bootstrap.RunWorker(gctx, app.queue, app.dispatcher, app.logger)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (app *application) closeQueue() {
	if app.queue == nil {
		return
	}
	if err := app.queue.Close(); err != nil {
		app.logger.Error("error closing task queue", slog.String("error", err.Error()))
	}
}

// cleanup releases the queue and the database connection.
func (app *application) cleanup() {
	app.closeQueue()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}

	app.logger.Info("application shutdown completed")
}
