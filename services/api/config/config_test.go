package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dijital/hydro-viewer/services/api/feed"
)

var envKeys = []string{
	"DATABASE_URL", "PORT", "API_PORT", "LOG_LEVEL", "LOG_FORMAT",
	"HYDRO_STATION_LIST_URL", "HYDRO_READINGS_URL_TEMPLATE", "HYDRO_FETCH_TIMEOUT",
	"HYDRO_REFRESH_THRESHOLD", "HYDRO_SEARCH_LIMIT",
}

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, map[string]string{"DATABASE_URL": "postgres://localhost/hydro"})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/hydro", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.ListenAddr())
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, feed.DefaultStationListURL, cfg.StationListURL)
	assert.Equal(t, feed.DefaultReadingsURLTemplate, cfg.ReadingsURLTemplate)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, time.Hour, cfg.RefreshThreshold)
	assert.Equal(t, 100, cfg.SearchLimit)
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, map[string]string{
		"DATABASE_URL":                "postgres://db/hydro",
		"API_PORT":                    "9090",
		"LOG_LEVEL":                   "debug",
		"LOG_FORMAT":                  "JSON",
		"HYDRO_READINGS_URL_TEMPLATE": "http://mirror/{prov}/{id}.csv",
		"HYDRO_FETCH_TIMEOUT":         "5s",
		"HYDRO_REFRESH_THRESHOLD":     "15m",
		"HYDRO_SEARCH_LIMIT":          "25",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "http://mirror/{prov}/{id}.csv", cfg.ReadingsURLTemplate)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 15*time.Minute, cfg.RefreshThreshold)
	assert.Equal(t, 25, cfg.SearchLimit)
}

func TestLoadPortPrecedence(t *testing.T) {
	setEnv(t, map[string]string{"DATABASE_URL": "x", "PORT": "7000", "API_PORT": "9090"})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing database":    {},
		"bad port":            {"DATABASE_URL": "x", "PORT": "eighty"},
		"bad log level":       {"DATABASE_URL": "x", "LOG_LEVEL": "loud"},
		"bad log format":      {"DATABASE_URL": "x", "LOG_FORMAT": "xml"},
		"template without id": {"DATABASE_URL": "x", "HYDRO_READINGS_URL_TEMPLATE": "http://mirror/{prov}.csv"},
		"bad timeout":         {"DATABASE_URL": "x", "HYDRO_FETCH_TIMEOUT": "soon"},
		"negative threshold":  {"DATABASE_URL": "x", "HYDRO_REFRESH_THRESHOLD": "-1h"},
		"non-positive limit":  {"DATABASE_URL": "x", "HYDRO_SEARCH_LIMIT": "0"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			setEnv(t, env)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
