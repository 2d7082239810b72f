// Package control wires the task engine to its backends and owns the
// application lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/tmnhat/basketq/internal/core/config"
	"github.com/tmnhat/basketq/internal/health"
	redisclient "github.com/tmnhat/basketq/internal/infra/redis"
	"github.com/tmnhat/basketq/internal/infra/storage"
	"github.com/tmnhat/basketq/internal/infra/storage/postgres"
	"github.com/tmnhat/basketq/internal/observe"
	"github.com/tmnhat/basketq/internal/tasks"
	"github.com/tmnhat/basketq/internal/taskq"
)

// App owns the wired engine and its backends.
type App struct {
	cfg    *config.AppConfig
	db     *postgres.DB
	engine *taskq.Engine
	queue  *taskq.Queue
	health *health.Server

	failedTasks storage.FailedTaskRepository
	queuedTasks storage.QueuedTaskRepository
}

// New connects to redis and postgres (with a short connection back-off),
// applies migrations, and builds the engine with the built-in tasks
// registered.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(time.Second))

	rdb, err := redisclient.Connection(cfg.Redis, false)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var db *postgres.DB
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var derr error
		db, derr = postgres.NewDB(ctx, cfg.Database)
		return retry.RetryableError(derr)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	queue := taskq.NewQueue(cfg.Queue.Name, rdb)
	failedRepo := postgres.NewFailedTaskRepo(db)
	queuedRepo := postgres.NewQueuedTaskRepo(db)

	engine := taskq.NewEngine(taskq.Options{
		Backend:           queue,
		Flags:             cfg.Flags(),
		FailedTasks:       failedRepo,
		QueuedTasks:       queuedRepo,
		Sink:              observe.NewLogSink(),
		StoreTaskFailures: cfg.StoreTaskFailures,
		MaxRetries:        cfg.Queue.MaxRetries,
		MaxRetryDelay:     cfg.Queue.MaxRetryDelay,
		DefaultTimeout:    cfg.Queue.DefaultTimeout,
		ResultTTL:         cfg.Queue.ResultTTL,
		Debug:             cfg.Debug,
		Eager:             !cfg.Queue.IsAsync,
	})
	tasks.RegisterAll(engine, cfg)

	app := &App{
		cfg:         cfg,
		db:          db,
		engine:      engine,
		queue:       queue,
		failedTasks: failedRepo,
		queuedTasks: queuedRepo,
	}
	app.health = health.NewServer(cfg.Server.Port,
		health.Check{CheckName: "redis", Ping: queue.Health},
		health.Check{CheckName: "postgres", Ping: db.Health},
	)
	return app, nil
}

func (a *App) Engine() *taskq.Engine                     { return a.engine }
func (a *App) Queue() *taskq.Queue                       { return a.queue }
func (a *App) FailedTasks() storage.FailedTaskRepository { return a.failedTasks }
func (a *App) QueuedTasks() storage.QueuedTaskRepository { return a.queuedTasks }

// Start serves health and metrics in the background.
func (a *App) Start(ctx context.Context) error {
	go func() {
		slog.Info("Health server listening", "port", a.cfg.Server.Port)
		if err := a.health.Start(); err != nil && ctx.Err() == nil {
			slog.Error("Health server stopped", "error", err)
		}
	}()
	return nil
}

// RunWorker runs the blocking dequeue-execute loop.
func (a *App) RunWorker(ctx context.Context, opts taskq.WorkerOptions) error {
	worker := taskq.NewWorker(a.engine, opts)
	return worker.Work(ctx)
}

// Stop shuts everything down gracefully.
func (a *App) Stop(ctx context.Context) error {
	if err := a.health.Stop(ctx); err != nil {
		slog.Error("Error stopping health server", "error", err)
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
