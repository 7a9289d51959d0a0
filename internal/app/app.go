// Package app wires the long-lived collaborators shared by the api and
// worker processes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"emlak-aggregator/internal/broker"
	"emlak-aggregator/internal/cleanup"
	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/database"
	"emlak-aggregator/internal/dom"
	"emlak-aggregator/internal/scheduler"
	"emlak-aggregator/internal/search"
	"emlak-aggregator/internal/tasks"
)

// App holds the store, the progress broker, the job queue and the optional
// search client
type App struct {
	Config *config.Config
	Store  *database.Store
	Broker broker.Broker
	Status *broker.StatusStore
	Queue  *tasks.GormQueue
	Search *search.Client // nil when search is disabled

	log *slog.Logger
}

// Open connects every backing service named by cfg
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	var b broker.Broker
	if cfg.Broker.RedisURL != "" {
		b, err = broker.NewRedisBroker(ctx, cfg.Broker.RedisURL)
		if err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("progress broker: redis")
	} else {
		b = broker.NewMemoryBroker()
		logger.Warn("progress broker: in-memory, status is only visible inside this process")
	}

	a := &App{
		Config: cfg,
		Store:  store,
		Broker: b,
		Status: broker.NewStatusStore(b, cfg.Broker.StatusTTL),
		Queue:  tasks.NewGormQueue(store.DB(), logger),
		log:    logger,
	}

	if cfg.Search.Enabled {
		a.Search = search.NewClient(cfg.Search.Meilisearch.Host, cfg.Search.Meilisearch.APIKey, cfg.Search.Index)
		if err := a.Search.InitIndex(); err != nil {
			logger.Warn("failed to initialize search index", "error", err)
		}
	}
	return a, nil
}

// Dispatcher returns a dispatcher over the app's queue and status store
func (a *App) Dispatcher() *tasks.Dispatcher {
	return tasks.NewDispatcher(a.Queue, a.Status, a.log)
}

// Worker returns a worker running jobs in headless Chrome sessions
func (a *App) Worker() *tasks.Worker {
	sc := a.Config.Scraper
	factory := dom.ChromeFactory(dom.ChromeOptions{
		Headless:        sc.Headless,
		DisableImages:   sc.DisableImages,
		UserAgent:       sc.UserAgent,
		ChromePath:      sc.ChromePath,
		PageLoadTimeout: sc.GetPageLoadTimeout(),
		Logger:          a.log,
	})
	opts := tasks.RunnerOptions{
		Store:   a.Store,
		Status:  a.Status,
		Factory: factory,
		Config:  sc,
		Logger:  a.log,
	}
	if a.Search != nil {
		opts.Indexer = a.Search
	}
	return tasks.NewWorker(a.Queue, tasks.NewRunner(opts), a.Config.Tasks, a.log)
}

// Maintenance returns the cron scheduler of the maintenance pass
func (a *App) Maintenance() *scheduler.Scheduler {
	svc := cleanup.NewService(a.Queue, a.Store, a.Config.Tasks, a.log)
	return scheduler.NewScheduler(a.Config.Tasks.MaintenanceSchedule, svc, a.log)
}

// Close releases the broker and the database
func (a *App) Close() error {
	return errors.Join(a.Broker.Close(), a.Store.Close())
}
