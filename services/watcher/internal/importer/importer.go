// Package importer loads the station catalog into the database and, on
// request, warms every station's readings through the refresh path.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dijital/hydro-viewer/services/api/db"
	"github.com/dijital/hydro-viewer/services/api/models"
	"github.com/dijital/hydro-viewer/services/api/observability"
	"github.com/dijital/hydro-viewer/services/api/refresh"
)

// CatalogFetcher downloads the station list.
type CatalogFetcher interface {
	FetchStationCatalog(ctx context.Context) (string, error)
}

// CatalogParser turns the station list into records.
type CatalogParser interface {
	ParseCatalog(text string) ([]models.StationRecord, int)
}

// StationWriter is the part of the station repository the importer uses.
type StationWriter interface {
	Upsert(ctx context.Context, q db.Querier, stations []models.StationRecord) error
	ListIDs(ctx context.Context, q db.Querier) ([]string, error)
}

// Updater refreshes one station.
type Updater interface {
	Update(ctx context.Context, id string) (refresh.Outcome, error)
}

// Options tune a run.
type Options struct {
	RefreshReadings bool
	Concurrency     int
	DryRun          bool
}

// Summary reports what a run did.
type Summary struct {
	Imported int
	Dropped  int
	Outcomes map[refresh.Outcome]int
	Failed   int
}

// Importer runs catalog imports and bulk refreshes.
type Importer struct {
	tx       refresh.TxRunner
	stations StationWriter
	fetcher  CatalogFetcher
	parser   CatalogParser
	updater  Updater
	metrics  *observability.Metrics
	logger   *slog.Logger
	opts     Options
}

// New wires an Importer. updater may be nil when RefreshReadings is off.
func New(tx refresh.TxRunner, stations StationWriter, fetcher CatalogFetcher, parser CatalogParser, updater Updater, metrics *observability.Metrics, logger *slog.Logger, opts Options) *Importer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Importer{
		tx:       tx,
		stations: stations,
		fetcher:  fetcher,
		parser:   parser,
		updater:  updater,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
}

// Run imports the catalog and then, if enabled, refreshes every station.
func (im *Importer) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{Outcomes: map[refresh.Outcome]int{}}

	imported, dropped, err := im.ImportCatalog(ctx)
	sum.Imported, sum.Dropped = imported, dropped
	if err != nil {
		return sum, err
	}

	if im.opts.RefreshReadings {
		if im.opts.DryRun {
			im.logger.Info("dry-run: skipping readings refresh")
		} else {
			outcomes, failed, err := im.RefreshAll(ctx)
			sum.Outcomes, sum.Failed = outcomes, failed
			if err != nil {
				return sum, err
			}
		}
	}

	im.logger.Info("watcher run complete",
		"imported", sum.Imported,
		"dropped", sum.Dropped,
		"failed", sum.Failed,
		"duration", time.Since(start),
	)
	return sum, nil
}

// ImportCatalog downloads and parses the station list and upserts every
// station in a single transaction.
func (im *Importer) ImportCatalog(ctx context.Context) (imported, dropped int, err error) {
	fetchStart := time.Now()
	body, err := im.fetcher.FetchStationCatalog(ctx)
	im.metrics.FetchDuration.WithLabelValues("catalog").Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		return 0, 0, fmt.Errorf("fetch station catalog: %w", err)
	}

	records, dropped := im.parser.ParseCatalog(body)
	im.metrics.RowsDropped.WithLabelValues("catalog").Add(float64(dropped))
	im.logger.Info("parsed station catalog", "stations", len(records), "dropped", dropped)

	if len(records) == 0 {
		return 0, dropped, errors.New("station catalog is empty")
	}

	if im.opts.DryRun {
		for _, rec := range records {
			im.logger.Debug("dry-run: would upsert station", "id", rec.ID, "name", rec.Name, "prov", rec.Province)
		}
		im.logger.Info("dry-run: skipping station upsert", "candidates", len(records))
		return 0, dropped, nil
	}

	err = im.tx.WithTx(ctx, func(q db.Querier) error {
		return im.stations.Upsert(ctx, q, records)
	})
	if err != nil {
		return 0, dropped, fmt.Errorf("upsert stations: %w", err)
	}

	im.metrics.StationsImported.Add(float64(len(records)))
	im.logger.Info("upserted stations", "count", len(records))
	return len(records), dropped, nil
}

// RefreshAll runs the on-read refresh for every station with a province,
// at most Concurrency at a time. A failing station does not stop the rest;
// only cancellation of ctx does.
func (im *Importer) RefreshAll(ctx context.Context) (map[refresh.Outcome]int, int, error) {
	if im.updater == nil {
		return nil, 0, errors.New("readings refresh requested without an updater")
	}

	ids, err := im.stations.ListIDs(ctx, im.tx.Querier())
	if err != nil {
		return nil, 0, fmt.Errorf("list stations: %w", err)
	}
	im.logger.Info("refreshing station readings", "stations", len(ids), "concurrency", im.opts.Concurrency)

	var mu sync.Mutex
	outcomes := make(map[refresh.Outcome]int)
	failed := 0

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Concurrency)

	for _, id := range ids {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, err := im.updater.Update(gCtx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				im.logger.Warn("station refresh failed", "station", id, "error", err)
				return nil
			}
			outcomes[outcome]++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, failed, err
	}
	if err := ctx.Err(); err != nil {
		return outcomes, failed, err
	}
	return outcomes, failed, nil
}
