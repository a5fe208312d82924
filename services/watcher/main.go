package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/dijital/hydro-viewer/services/api/db"
	"github.com/dijital/hydro-viewer/services/api/feed"
	"github.com/dijital/hydro-viewer/services/api/observability"
	"github.com/dijital/hydro-viewer/services/api/refresh"
	"github.com/dijital/hydro-viewer/services/watcher/internal/config"
	"github.com/dijital/hydro-viewer/services/watcher/internal/importer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("watcher failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, "hydro-watcher")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Migrate && !cfg.DryRun {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("schema applied")
	}

	metrics := observability.NewWatcherMetrics()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}
	stations := db.NewStationRepository()
	client := feed.NewClient(cfg.StationListURL, cfg.ReadingsURLTemplate, cfg.FetchTimeout, logger)
	parser := feed.NewParser(logger)

	var updater importer.Updater
	if cfg.RefreshReadings {
		updater = refresh.NewSynchronizer(
			store,
			stations,
			db.NewReadingRepository(),
			client,
			parser,
			refresh.NewGate(clockwork.NewRealClock(), cfg.RefreshThreshold),
			logger,
			metrics,
		)
	}

	im := importer.New(store, stations, client, parser, updater, metrics, logger, importer.Options{
		RefreshReadings: cfg.RefreshReadings,
		Concurrency:     cfg.Concurrency,
		DryRun:          cfg.DryRun,
	})

	if cfg.RunOnce {
		_, err := im.Run(ctx)
		return err
	}

	// Run immediately on startup, then on schedule.
	if _, err := im.Run(ctx); err != nil {
		logger.Error("initial import failed", "error", err)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if _, err := im.Run(ctx); err != nil {
			logger.Error("scheduled import failed", "error", err)
		}
	}); err != nil {
		return err
	}

	logger.Info("watcher scheduled", "schedule", cfg.Schedule)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
