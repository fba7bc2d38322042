package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheel_ledger/internal/config"
	"github.com/eddiefleurent/wheel_ledger/internal/lifecycle"
	"github.com/eddiefleurent/wheel_ledger/internal/market"
	"github.com/eddiefleurent/wheel_ledger/internal/mock"
	"github.com/eddiefleurent/wheel_ledger/internal/pricing"
	"github.com/eddiefleurent/wheel_ledger/internal/storage"
	"github.com/eddiefleurent/wheel_ledger/internal/storage/postgres"
)

// app holds the services shared by every command.
type app struct {
	cfg        *config.Config
	logger     *logrus.Logger
	calendar   *market.Calendar
	clock      market.Clock
	storage    storage.Interface
	reconciler *lifecycle.Reconciler
	refresher  *pricing.Refresher
	pool       *pgxpool.Pool
}

// loadConfig reads cfgFile. Without --config a missing ./config.yaml falls
// back to defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil && cfgFile == "" && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Environment.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Environment.LogLevel)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	a := &app{cfg: cfg, logger: newLogger(cfg), clock: market.SystemClock{}}

	if a.calendar, err = cfg.Calendar(); err != nil {
		return nil, err
	}
	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	a.reconciler = lifecycle.NewReconciler(a.storage, a.calendar, a.clock, a.logger)
	var feed pricing.Feed
	switch cfg.Pricing.Provider {
	case config.ProviderTradier:
		feed = pricing.NewBreakerFeed(pricing.NewTradierFeed(cfg.TradierConfig(), a.logger), cfg.BreakerSettings(), a.logger)
	case config.ProviderMock:
		a.logger.Warn("Using simulated option prices")
		feed = mock.NewFeed(a.calendar, a.clock)
	}
	if feed != nil {
		a.refresher = pricing.NewRefresher(feed, a.storage, a.logger,
			pricing.WithRetry(cfg.RetryConfig()),
			pricing.WithMaxConcurrency(cfg.Pricing.MaxConcurrency))
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, a.cfg.PostgresConfig())
		if err != nil {
			return err
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return err
		}
		a.pool = pool
		a.storage = postgres.NewStore(pool)
		a.logger.Info("Using PostgreSQL storage")
	default:
		store, err := storage.NewJSONStorage(a.cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		a.storage = store
		a.logger.WithField("path", a.cfg.Storage.Path).Info("Using JSON file storage")
	}
	return nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
