package observability

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registeredNames(t *testing.T, reg *prometheus.Registry) []string {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	return names
}

func touchAll(m *Metrics) {
	m.Refreshes.WithLabelValues("fresh").Inc()
	m.FetchDuration.WithLabelValues("readings").Observe(0.1)
	m.ReadingsIngested.Inc()
	m.RowsDropped.WithLabelValues("readings").Inc()
	m.StationsImported.Inc()
}

func TestAPIRegistersNoImportCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetrics()
	m.register(reg, false)
	touchAll(m)

	names := registeredNames(t, reg)
	assert.Contains(t, names, "hydro_refresh_total")
	assert.NotContains(t, names, "hydro_stations_imported_total")
}

func TestWatcherRegistersImportCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetrics()
	m.register(reg, true)
	touchAll(m)

	assert.Contains(t, registeredNames(t, reg), "hydro_stations_imported_total")
}

func TestWatcherMetricsExposed(t *testing.T) {
	m := NewWatcherMetrics()
	m.StationsImported.Add(3)
	m.RowsDropped.WithLabelValues("catalog").Add(2)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "hydro_stations_imported_total 3")
	assert.Contains(t, body, `hydro_feed_rows_dropped_total{feed="catalog"} 2`)
}

func TestServeMetricsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeMetrics(ctx, "127.0.0.1:0", slog.New(slog.DiscardHandler))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
