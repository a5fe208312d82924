package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/dijital/hydro-viewer/services/api/config"
	"github.com/dijital/hydro-viewer/services/api/db"
	"github.com/dijital/hydro-viewer/services/api/feed"
	httpserver "github.com/dijital/hydro-viewer/services/api/http"
	"github.com/dijital/hydro-viewer/services/api/observability"
	"github.com/dijital/hydro-viewer/services/api/query"
	"github.com/dijital/hydro-viewer/services/api/refresh"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, "hydro-api")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection error", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	metrics := observability.NewMetrics()
	stations := db.NewStationRepository()
	readings := db.NewReadingRepository()

	synchronizer := refresh.NewSynchronizer(
		store,
		stations,
		readings,
		feed.NewClient(cfg.StationListURL, cfg.ReadingsURLTemplate, cfg.FetchTimeout, logger),
		feed.NewParser(logger),
		refresh.NewGate(clockwork.NewRealClock(), cfg.RefreshThreshold),
		logger,
		metrics,
	)
	svc := query.NewService(store, stations, readings, synchronizer, cfg.SearchLimit, logger)

	srv := httpserver.New(cfg, svc, store, logger)
	logger.Info("REST API listening", "addr", cfg.ListenAddr(), "refresh_threshold", cfg.RefreshThreshold)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
