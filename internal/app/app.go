// Package app wires the Piatto services for the command line and the bot.
package app

import (
	"context"
	"fmt"
	"time"

	"piatto/internal/api"
	"piatto/internal/collection"
	"piatto/internal/config"
	"piatto/internal/cooking"
	"piatto/internal/database"
	"piatto/internal/library"
	"piatto/internal/metrics"
	"piatto/internal/recipe"
	"piatto/internal/session"
	"piatto/internal/storage"
	"piatto/internal/wizard"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// App holds the application's dependencies.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *database.DB
	client   *api.Client
	local    storage.KV
	sqlStore *storage.SQLStore
	metrics  *metrics.Store
	registry *prometheus.Registry
}

// Option configures an App.
type Option func(*options)

type options struct {
	fileStorage bool
	apiOpts     []api.Option
}

// WithFileStorage keeps session ids in the JSON file at cfg.StoragePath
// instead of the database.
func WithFileStorage() Option {
	return func(o *options) { o.fileStorage = true }
}

// WithAPIOptions passes extra options to the API client.
func WithAPIOptions(opts ...api.Option) Option {
	return func(o *options) { o.apiOpts = append(o.apiOpts, opts...) }
}

// New opens the database and creates the API client. Requests are recorded
// in the request_metrics table and in Prometheus.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := database.NewDB(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	registry := prometheus.NewRegistry()
	metricsStore := metrics.NewStore(db.SQL, metrics.NewCollectors(registry), logger)

	apiOpts := append([]api.Option{api.WithRecorder(metricsStore), api.WithLogger(logger)}, o.apiOpts...)
	client, err := api.NewClient(cfg, apiOpts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		client:   client,
		sqlStore: storage.NewSQLStore(db.SQL),
		metrics:  metricsStore,
		registry: registry,
	}
	a.local = a.sqlStore
	if o.fileStorage {
		fs, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.local = fs
	}
	return a, nil
}

// Close closes the database connection.
func (a *App) Close() error {
	return a.db.Close()
}

func (a *App) Config() *config.Config {
	return a.cfg
}

func (a *App) Logger() *zap.Logger {
	return a.logger
}

func (a *App) Client() *api.Client {
	return a.client
}

// Storage is where session ids are kept.
func (a *App) Storage() storage.KV {
	return a.local
}

func (a *App) Metrics() *metrics.Store {
	return a.metrics
}

// Registry holds the Prometheus collectors of the API client.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Wizard creates a step controller presenting through view.
func (a *App) Wizard(view wizard.View) *wizard.Controller {
	return wizard.New(a.client, session.Preparing(a.local), view,
		wizard.WithPollInterval(a.cfg.PollInterval),
		wizard.WithLogger(a.logger),
	)
}

// Tracker tracks save/discard decisions for the options of a session.
func (a *App) Tracker(sessionID int64, opts []recipe.Option) *library.Tracker {
	return library.NewTracker(a.client, sessionID, opts,
		library.WithUndoWindow(a.cfg.UndoWindow),
		library.WithLogger(a.logger),
	)
}

// Collections returns the collection service.
func (a *App) Collections() *collection.Service {
	return collection.NewService(a.client, a.logger)
}

// Cooking returns the cooking service for the stored cooking session.
func (a *App) Cooking() *cooking.Service {
	return cooking.NewService(a.client, session.Cooking(a.local), a.logger)
}

// PreparingSessionID returns the stored preparing session id.
func (a *App) PreparingSessionID() (int64, bool) {
	return session.Preparing(a.local).SessionID()
}

// Cleanup removes request metrics and stored session ids older than the
// given number of days.
func (a *App) Cleanup(ctx context.Context, olderThanDays int) (metricsRemoved, itemsRemoved int64, err error) {
	metricsRemoved, err = a.metrics.Cleanup(ctx, olderThanDays)
	if err != nil {
		return 0, 0, err
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	itemsRemoved, err = a.sqlStore.CleanupOlderThan(ctx, cutoff)
	if err != nil {
		return metricsRemoved, 0, err
	}
	a.logger.Info("cleanup finished",
		zap.Int64("metrics_removed", metricsRemoved),
		zap.Int64("items_removed", itemsRemoved),
	)
	return metricsRemoved, itemsRemoved, nil
}
