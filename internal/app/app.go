package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/handlers"
	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/services/events"
	"github.com/ternarybob/tacet/internal/services/monitor"
	"github.com/ternarybob/tacet/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventBus       interfaces.EventBus
	MonitorService *monitor.Service

	// HTTP handlers
	SnapshotHandler *handlers.SnapshotHandler
	BaselineHandler *handlers.BaselineHandler
	TriggerHandler  *handlers.TriggerHandler
	DeltaHandler    *handlers.DeltaHandler
	EventHandler    *handlers.EventHandler
	StatusHandler   *handlers.StatusHandler
	StreamHandler   *handlers.StreamHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	storageManager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	app.EventBus = events.NewService(logger)
	app.MonitorService = monitor.NewService(cfg, app.StorageManager, app.EventBus)

	app.SnapshotHandler = handlers.NewSnapshotHandler(app.MonitorService, &cfg.Ingest, logger)
	app.BaselineHandler = handlers.NewBaselineHandler(app.MonitorService, app.StorageManager.BaselineStorage(), logger)
	app.TriggerHandler = handlers.NewTriggerHandler(app.MonitorService, logger)
	app.DeltaHandler = handlers.NewDeltaHandler(app.MonitorService, app.StorageManager.DeltaStorage(), logger)
	app.EventHandler = handlers.NewEventHandler(app.StorageManager.EventStorage(), app.MonitorService, logger)
	app.StatusHandler = handlers.NewStatusHandler(app.MonitorService, app.StorageManager, logger)
	app.StreamHandler = handlers.NewStreamHandler(app.EventBus, &cfg.WebSocket, logger)

	if err := app.MonitorService.Start(app.ctx); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to start monitor service: %w", err)
	}

	logger.Info().
		Int("entities", len(cfg.Monitor.Entities)).
		Str("storage_path", cfg.Storage.Badger.Path).
		Msg("Application initialized")

	return app, nil
}

// Close shuts down all application components in reverse dependency order
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.MonitorService != nil {
		a.MonitorService.Stop()
	}

	if a.EventBus != nil {
		if err := a.EventBus.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event bus close failed")
		}
	}

	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Storage close failed")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
