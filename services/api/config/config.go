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

	"github.com/dijital/hydro-viewer/services/api/feed"
	"github.com/dijital/hydro-viewer/services/api/observability"
)

const (
	defaultPort             = 8080
	defaultFetchTimeout     = 30 * time.Second
	defaultRefreshThreshold = time.Hour
	defaultSearchLimit      = 100
)

// Config holds environment-driven settings for the query API.
type Config struct {
	DatabaseURL         string
	Port                int
	LogLevel            slog.Level
	LogFormat           string
	StationListURL      string
	ReadingsURLTemplate string
	FetchTimeout        time.Duration
	RefreshThreshold    time.Duration
	SearchLimit         int
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Port:                defaultPort,
		LogFormat:           "text",
		StationListURL:      feed.DefaultStationListURL,
		ReadingsURLTemplate: feed.DefaultReadingsURLTemplate,
		FetchTimeout:        defaultFetchTimeout,
		RefreshThreshold:    defaultRefreshThreshold,
		SearchLimit:         defaultSearchLimit,
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := os.Getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	level, err := observability.ParseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return cfg, err
	}
	cfg.LogLevel = level

	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		switch strings.ToLower(v) {
		case "text", "json":
			cfg.LogFormat = strings.ToLower(v)
		default:
			return cfg, fmt.Errorf("invalid LOG_FORMAT %q (allowed: text, json)", v)
		}
	}

	if v := strings.TrimSpace(os.Getenv("HYDRO_STATION_LIST_URL")); v != "" {
		cfg.StationListURL = v
	}

	if v := strings.TrimSpace(os.Getenv("HYDRO_READINGS_URL_TEMPLATE")); v != "" {
		if !strings.Contains(v, "{id}") {
			return cfg, fmt.Errorf("invalid HYDRO_READINGS_URL_TEMPLATE: missing {id} placeholder")
		}
		cfg.ReadingsURLTemplate = v
	}

	if v := strings.TrimSpace(os.Getenv("HYDRO_FETCH_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid HYDRO_FETCH_TIMEOUT: %s", v)
		}
		cfg.FetchTimeout = d
	}

	if v := strings.TrimSpace(os.Getenv("HYDRO_REFRESH_THRESHOLD")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid HYDRO_REFRESH_THRESHOLD: %s", v)
		}
		cfg.RefreshThreshold = d
	}

	if v := strings.TrimSpace(os.Getenv("HYDRO_SEARCH_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SearchLimit = n
		} else {
			return cfg, fmt.Errorf("invalid HYDRO_SEARCH_LIMIT: %s", v)
		}
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
