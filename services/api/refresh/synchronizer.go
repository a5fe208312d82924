package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dijital/hydro-viewer/services/api/db"
	"github.com/dijital/hydro-viewer/services/api/models"
	"github.com/dijital/hydro-viewer/services/api/observability"
)

// ErrStationNotFound is returned by Update for ids missing from the catalog.
var ErrStationNotFound = errors.New("station not found")

// Outcome describes what an Update call did.
type Outcome string

const (
	OutcomeFresh         Outcome = "fresh"
	OutcomeRefreshed     Outcome = "refreshed"
	OutcomeInFlight      Outcome = "in_flight"
	OutcomeFetchFailed   Outcome = "fetch_failed"
	OutcomePersistFailed Outcome = "persist_failed"
)

// DefaultBudget bounds a whole refresh: lock, download, ingest and commit.
const DefaultBudget = 2 * time.Minute

// StationStore is the part of the station repository used while refreshing.
type StationStore interface {
	Get(ctx context.Context, q db.Querier, id string) (*models.Station, error)
	LockForRefresh(ctx context.Context, q db.Querier, id string) (*models.Station, error)
	TouchLastUpdate(ctx context.Context, q db.Querier, id string, at time.Time) error
}

// ReadingStore persists parsed readings.
type ReadingStore interface {
	Upsert(ctx context.Context, q db.Querier, stationID string, readings []models.ReadingRecord) (int, error)
}

// TxRunner hands out the pool for plain reads and runs transactions.
type TxRunner interface {
	Querier() db.Querier
	WithTx(ctx context.Context, fn func(q db.Querier) error) error
}

// Fetcher downloads a station's readings feed.
type Fetcher interface {
	FetchStationReadings(ctx context.Context, stationID, province string) (string, error)
}

// ReadingsParser turns a readings feed into records.
type ReadingsParser interface {
	ParseReadings(text string) ([]models.ReadingRecord, int)
}

// Synchronizer refreshes a station's cached readings from the upstream feed
// when the freshness gate says they are stale.
//
// At most one refresh per station runs in this process (single-flight); the
// row lock taken inside the ingestion transaction extends that to other
// processes sharing the database. The feed is downloaded before the
// transaction opens, so a slow upstream never holds a connection.
type Synchronizer struct {
	tx       TxRunner
	stations StationStore
	readings ReadingStore
	fetcher  Fetcher
	parser   ReadingsParser
	gate     *Gate
	logger   *slog.Logger
	metrics  *observability.Metrics
	budget   time.Duration
	flight   singleflight.Group
}

// NewSynchronizer wires a Synchronizer.
func NewSynchronizer(
	tx TxRunner,
	stations StationStore,
	readings ReadingStore,
	fetcher Fetcher,
	parser ReadingsParser,
	gate *Gate,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Synchronizer {
	return &Synchronizer{
		tx:       tx,
		stations: stations,
		readings: readings,
		fetcher:  fetcher,
		parser:   parser,
		gate:     gate,
		logger:   logger,
		metrics:  metrics,
		budget:   DefaultBudget,
	}
}

// Update refreshes the station's readings if they are stale.
//
// Upstream and persistence failures are logged and reported through the
// Outcome only; callers keep serving whatever is cached. The returned error
// is non-nil only when the station is unknown (ErrStationNotFound) or the
// initial lookup itself fails.
func (s *Synchronizer) Update(ctx context.Context, id string) (Outcome, error) {
	v, err, shared := s.flight.Do(id, func() (any, error) {
		// Joined callers must not lose the refresh when the first caller goes away.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.budget)
		defer cancel()
		return s.update(rctx, id)
	})
	if shared {
		s.logger.Debug("joined in-flight refresh", "station", id)
	}
	if err != nil {
		return "", err
	}
	return v.(Outcome), nil
}

func (s *Synchronizer) update(ctx context.Context, id string) (Outcome, error) {
	st, err := s.stations.Get(ctx, s.tx.Querier(), id)
	if err != nil {
		return "", fmt.Errorf("look up station %s: %w", id, err)
	}
	if st == nil {
		return "", fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	if !s.gate.IsStale(*st) {
		s.record(OutcomeFresh)
		return OutcomeFresh, nil
	}

	// Download and parse before opening the transaction so no pooled
	// connection or row lock is held while waiting on the upstream.
	fetchStart := time.Now()
	body, err := s.fetcher.FetchStationReadings(ctx, st.ID, st.Province)
	s.metrics.FetchDuration.WithLabelValues("readings").Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		s.logger.Warn("refresh skipped, serving cached readings",
			"station", id,
			"outcome", OutcomeFetchFailed,
			"error", err,
		)
		s.record(OutcomeFetchFailed)
		return OutcomeFetchFailed, nil
	}
	records, dropped := s.parser.ParseReadings(body)

	outcome := OutcomeRefreshed
	ingested := 0
	err = s.tx.WithTx(ctx, func(q db.Querier) error {
		locked, err := s.stations.LockForRefresh(ctx, q, id)
		if err != nil {
			return fmt.Errorf("lock station %s: %w", id, err)
		}
		// Locked elsewhere or refreshed since the first check: the
		// downloaded body is discarded.
		if locked == nil {
			outcome = OutcomeInFlight
			return nil
		}
		if !s.gate.IsStale(*locked) {
			outcome = OutcomeFresh
			return nil
		}

		n, err := s.readings.Upsert(ctx, q, id, records)
		if err != nil {
			return fmt.Errorf("persist readings for %s: %w", id, err)
		}
		if err := s.stations.TouchLastUpdate(ctx, q, id, s.gate.Now()); err != nil {
			return fmt.Errorf("stamp last update for %s: %w", id, err)
		}
		ingested = n
		return nil
	})
	if err != nil {
		outcome = OutcomePersistFailed
		s.logger.Warn("refresh skipped, serving cached readings",
			"station", id,
			"outcome", outcome,
			"error", err,
		)
		s.record(outcome)
		return outcome, nil
	}

	s.record(outcome)
	if outcome == OutcomeRefreshed {
		s.metrics.ReadingsIngested.Add(float64(ingested))
		s.metrics.RowsDropped.WithLabelValues("readings").Add(float64(dropped))
		s.logger.Info("station refreshed", "station", id, "readings", ingested, "dropped", dropped)
	}
	return outcome, nil
}

func (s *Synchronizer) record(o Outcome) {
	s.metrics.Refreshes.WithLabelValues(string(o)).Inc()
}
