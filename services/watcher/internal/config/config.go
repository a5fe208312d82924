package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/dijital/hydro-viewer/services/api/feed"
	"github.com/dijital/hydro-viewer/services/api/observability"
)

const (
	defaultSchedule         = "@daily"
	defaultFetchTimeout     = 30 * time.Second
	defaultRefreshThreshold = time.Hour
	defaultConcurrency      = 4
	defaultMetricsAddr      = ":9091"
)

// Config holds runtime configuration for the watcher service.
type Config struct {
	DatabaseURL         string
	StationListURL      string
	ReadingsURLTemplate string
	FetchTimeout        time.Duration
	RefreshThreshold    time.Duration
	Schedule            string
	RunOnce             bool
	Migrate             bool
	RefreshReadings     bool
	Concurrency         int
	DryRun              bool
	MetricsAddr         string
	LogLevel            slog.Level
	LogFormat           string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		StationListURL:      feed.DefaultStationListURL,
		ReadingsURLTemplate: feed.DefaultReadingsURLTemplate,
		FetchTimeout:        defaultFetchTimeout,
		RefreshThreshold:    defaultRefreshThreshold,
		Schedule:            defaultSchedule,
		Concurrency:         defaultConcurrency,
		MetricsAddr:         defaultMetricsAddr,
		LogFormat:           "text",
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	if v := strings.TrimSpace(os.Getenv("HYDRO_STATION_LIST_URL")); v != "" {
		cfg.StationListURL = v
	}
	if v := strings.TrimSpace(os.Getenv("HYDRO_READINGS_URL_TEMPLATE")); v != "" {
		if !strings.Contains(v, "{id}") {
			return cfg, errors.New("invalid HYDRO_READINGS_URL_TEMPLATE: missing {id} placeholder")
		}
		cfg.ReadingsURLTemplate = v
	}

	if v := strings.TrimSpace(os.Getenv("HYDRO_FETCH_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid HYDRO_FETCH_TIMEOUT: %w", err)
		}
		cfg.FetchTimeout = d
	}

	if v := strings.TrimSpace(os.Getenv("HYDRO_REFRESH_THRESHOLD")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid HYDRO_REFRESH_THRESHOLD: %w", err)
		}
		cfg.RefreshThreshold = d
	}

	if v := strings.TrimSpace(os.Getenv("WATCHER_SCHEDULE")); v != "" {
		cfg.Schedule = v
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return cfg, fmt.Errorf("invalid WATCHER_SCHEDULE %q: %w", cfg.Schedule, err)
	}

	if v := strings.TrimSpace(os.Getenv("WATCHER_CONCURRENCY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid WATCHER_CONCURRENCY: %s", v)
		}
		cfg.Concurrency = n
	}

	// "off" disables the metrics listener.
	if v := strings.TrimSpace(os.Getenv("WATCHER_METRICS_ADDR")); v != "" {
		if strings.EqualFold(v, "off") {
			cfg.MetricsAddr = ""
		} else {
			cfg.MetricsAddr = v
		}
	}

	cfg.RunOnce = envBool("WATCHER_RUN_ONCE")
	cfg.Migrate = envBool("WATCHER_MIGRATE")
	cfg.RefreshReadings = envBool("WATCHER_REFRESH_READINGS")
	cfg.DryRun = envBool("DRY_RUN")

	level, err := observability.ParseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return cfg, err
	}
	cfg.LogLevel = level

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))); v != "" {
		if v != "text" && v != "json" {
			return cfg, fmt.Errorf("invalid LOG_FORMAT %q (allowed: text, json)", v)
		}
		cfg.LogFormat = v
	}

	return cfg, nil
}

func envBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return v == "1" || strings.EqualFold(v, "true")
}
