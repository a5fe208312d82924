package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the refresh-on-read cache.
type Metrics struct {
	Refreshes        *prometheus.CounterVec // labels: outcome={fresh,refreshed,in_flight,fetch_failed,persist_failed}
	FetchDuration    *prometheus.HistogramVec
	ReadingsIngested prometheus.Counter
	RowsDropped      *prometheus.CounterVec // labels: feed={catalog,readings}
	StationsImported prometheus.Counter
}

// NewMetrics creates the API's metrics and registers the refresh collectors
// with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.register(prometheus.DefaultRegisterer, false)
	return m
}

// NewWatcherMetrics is NewMetrics plus the catalog import counter, which only
// the watcher updates.
func NewWatcherMetrics() *Metrics {
	m := newMetrics()
	m.register(prometheus.DefaultRegisterer, true)
	return m
}

func (m *Metrics) register(reg prometheus.Registerer, withImport bool) {
	reg.MustRegister(
		m.Refreshes,
		m.FetchDuration,
		m.ReadingsIngested,
		m.RowsDropped,
	)
	if withImport {
		reg.MustRegister(m.StationsImported)
	}
}

// NewMetricsForTesting creates unregistered collectors so tests can build
// as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydro",
			Name:      "refresh_total",
			Help:      "Station refresh attempts by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hydro",
			Name:      "feed_fetch_duration_seconds",
			Help:      "Duration of upstream feed downloads.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"feed"}),
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hydro",
			Name:      "readings_ingested_total",
			Help:      "Reading rows written by committed refreshes.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydro",
			Name:      "feed_rows_dropped_total",
			Help:      "Feed rows discarded by the parser.",
		}, []string{"feed"}),
		StationsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hydro",
			Name:      "stations_imported_total",
			Help:      "Catalog rows upserted by imports.",
		}),
	}
}
