package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agito/internal/browser"
	"github.com/ternarybob/agito/internal/common"
	"github.com/ternarybob/agito/internal/engine"
	"github.com/ternarybob/agito/internal/interfaces"
	"github.com/ternarybob/agito/internal/metrics"
	"github.com/ternarybob/agito/internal/scheduler"
	"github.com/ternarybob/agito/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB              *badger.BadgerDB
	WorkflowStorage interfaces.WorkflowStorage
	JobStorage      interfaces.JobStorage

	Metrics   *metrics.Sink
	Pool      *browser.Pool
	Engine    interfaces.WorkflowService
	Scheduler interfaces.SchedulerService
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	db, err := badger.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.DB = db
	app.WorkflowStorage = badger.NewWorkflowStorage(db, logger)
	app.JobStorage = badger.NewJobStorage(db, logger)

	logger.Debug().
		Str("storage", "badger").
		Str("path", cfg.Storage.Badger.Path).
		Msg("Storage layer initialized")

	app.Metrics = metrics.NewSink()

	app.Pool = browser.NewPool(browser.PoolConfig{
		MaxInstances:      cfg.Browser.MaxInstances,
		Headless:          cfg.Browser.Headless,
		DisableGPU:        cfg.Browser.DisableGPU,
		NoSandbox:         cfg.Browser.NoSandbox,
		UserAgent:         cfg.Browser.UserAgent,
		AcquireTimeout:    cfg.Browser.AcquireTimeout,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		NavigationRate:    cfg.Browser.NavigationRate,
	}, app.Metrics, logger)

	if cfg.Browser.WarmInstances > 0 {
		warmCtx, cancel := context.WithTimeout(context.Background(), cfg.Browser.AcquireTimeout)
		if err := app.Pool.Warm(warmCtx, cfg.Browser.WarmInstances); err != nil {
			logger.Warn().Err(err).Msg("Browser pool warm-up failed")
		}
		cancel()
	}

	engineService, err := engine.NewService(app.WorkflowStorage, app.Pool, app.Metrics, engine.Config{
		StepTimeout:     cfg.Engine.StepTimeout,
		WorkflowTimeout: cfg.Engine.WorkflowTimeout,
		HistoryLimit:    cfg.Engine.HistoryLimit,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize workflow engine: %w", err)
	}
	app.Engine = engineService

	schedulerService, err := scheduler.NewService(app.JobStorage, app.Engine, logger, scheduler.Config{
		Timezone:     cfg.Scheduler.Timezone,
		HistoryLimit: cfg.Scheduler.HistoryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	app.Scheduler = schedulerService

	if cfg.Scheduler.Enabled {
		if err := app.Scheduler.Start(); err != nil {
			return nil, fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		logger.Info().Msg("Scheduler disabled by configuration")
	}

	logger.Info().
		Int("max_browser_instances", cfg.Browser.MaxInstances).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// Close shuts components down in reverse dependency order: scheduler first so
// no new executions start, then the pool, then storage.
func (a *App) Close() {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}

	if a.Pool != nil {
		if err := a.Pool.Shutdown(); err != nil {
			a.Logger.Warn().Err(err).Msg("Browser pool shutdown failed")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Database close failed")
		}
	}

	a.Logger.Info().Msg("Application closed")
}
