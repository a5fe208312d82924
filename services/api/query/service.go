package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"

	"github.com/dijital/hydro-viewer/services/api/db"
	"github.com/dijital/hydro-viewer/services/api/models"
	"github.com/dijital/hydro-viewer/services/api/refresh"
)

const (
	// RandomID selects an arbitrary station.
	RandomID = "random"

	MinCount = 1
	MaxCount = 100
	// DefaultSearchLimit caps search results.
	DefaultSearchLimit = 100
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// ValidationError reports malformed client input. It is raised before any
// storage access.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// StationFinder is the read side of the station repository.
type StationFinder interface {
	Get(ctx context.Context, q db.Querier, id string) (*models.Station, error)
	Random(ctx context.Context, q db.Querier) (*models.Station, error)
	InBounds(ctx context.Context, q db.Querier, b models.Bounds) ([]models.Station, error)
	Search(ctx context.Context, q db.Querier, term string, limit int) ([]models.Station, error)
}

// ReadingFinder is the read side of the reading repository.
type ReadingFinder interface {
	LatestPerHour(ctx context.Context, q db.Querier, stationID string, n int) ([]models.Reading, error)
}

// ConnRunner hands a single pooled connection to fn for the duration of
// the call.
type ConnRunner interface {
	WithConn(ctx context.Context, fn func(q db.Querier) error) error
}

// Updater brings a station's cached readings up to date.
type Updater interface {
	Update(ctx context.Context, id string) (refresh.Outcome, error)
}

// ReadingsResult bundles a station with its hourly series. Station is nil
// when the id is unknown.
type ReadingsResult struct {
	Station  *models.Station  `json:"station"`
	Readings []models.Reading `json:"readings"`
}

// Service is the client-facing query surface.
type Service struct {
	conns       ConnRunner
	stations    StationFinder
	readings    ReadingFinder
	updater     Updater
	searchLimit int
	logger      *slog.Logger
}

// NewService wires the query surface. A non-positive searchLimit means
// DefaultSearchLimit.
func NewService(conns ConnRunner, stations StationFinder, readings ReadingFinder, updater Updater, searchLimit int, logger *slog.Logger) *Service {
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}
	return &Service{
		conns:       conns,
		stations:    stations,
		readings:    readings,
		updater:     updater,
		searchLimit: searchLimit,
		logger:      logger,
	}
}

// NormalizeID strips everything but ASCII letters and digits.
func NormalizeID(id string) (string, error) {
	clean := nonAlphanumeric.ReplaceAllString(id, "")
	if clean == "" {
		return "", &ValidationError{Msg: fmt.Sprintf("invalid station id: %q", id)}
	}
	return clean, nil
}

// ValidateCount checks that n is within [MinCount, MaxCount].
func ValidateCount(n int) error {
	if n < MinCount || n > MaxCount {
		return &ValidationError{Msg: fmt.Sprintf("bad count: %d (allowed %d-%d)", n, MinCount, MaxCount)}
	}
	return nil
}

// GetReadings refreshes the station if needed and returns it with its latest
// n hourly readings, oldest first.
func (s *Service) GetReadings(ctx context.Context, id string, n int) (ReadingsResult, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return ReadingsResult{}, err
	}
	if err := ValidateCount(n); err != nil {
		return ReadingsResult{}, err
	}

	empty := ReadingsResult{Readings: []models.Reading{}}

	if id == RandomID {
		var st *models.Station
		err := s.conns.WithConn(ctx, func(q db.Querier) error {
			var err error
			st, err = s.stations.Random(ctx, q)
			return err
		})
		if err != nil {
			return ReadingsResult{}, fmt.Errorf("pick random station: %w", err)
		}
		if st == nil {
			return empty, nil
		}
		id = st.ID
	}

	// Update manages its own connections; none is held across it.
	if _, err := s.updater.Update(ctx, id); err != nil {
		if errors.Is(err, refresh.ErrStationNotFound) {
			s.logger.Debug("readings requested for unknown station", "station", id)
			return empty, nil
		}
		return ReadingsResult{}, fmt.Errorf("update station %s: %w", id, err)
	}

	var res ReadingsResult
	err = s.conns.WithConn(ctx, func(q db.Querier) error {
		readings, err := s.readings.LatestPerHour(ctx, q, id, n)
		if err != nil {
			return fmt.Errorf("load readings for %s: %w", id, err)
		}
		st, err := s.stations.Get(ctx, q, id)
		if err != nil {
			return fmt.Errorf("load station %s: %w", id, err)
		}
		res = ReadingsResult{Station: st, Readings: readings}
		return nil
	})
	if err != nil {
		return ReadingsResult{}, err
	}
	return res, nil
}

// GetStation returns the station with the given id, an arbitrary one for
// RandomID, or nil when none matches.
func (s *Service) GetStation(ctx context.Context, id string) (*models.Station, error) {
	var st *models.Station
	err := s.conns.WithConn(ctx, func(q db.Querier) error {
		var err error
		if id == RandomID {
			st, err = s.stations.Random(ctx, q)
		} else {
			st, err = s.stations.Get(ctx, q, id)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load station: %w", err)
	}
	return st, nil
}

// GetStationsInBounds returns the stations inside the rectangle. Invalid or
// degenerate bounds mean the whole world.
func (s *Service) GetStationsInBounds(ctx context.Context, xmin, ymin, xmax, ymax float64) ([]models.Station, error) {
	b := NormalizeBounds(xmin, ymin, xmax, ymax)
	var stations []models.Station
	err := s.conns.WithConn(ctx, func(q db.Querier) error {
		var err error
		stations, err = s.stations.InBounds(ctx, q, b)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load stations in bounds: %w", err)
	}
	return stations, nil
}

// SearchStations ranks stations by name similarity to term.
func (s *Service) SearchStations(ctx context.Context, term string) ([]models.Station, error) {
	term = nonAlphanumeric.ReplaceAllString(term, "")
	if term == "" {
		return []models.Station{}, nil
	}
	var stations []models.Station
	err := s.conns.WithConn(ctx, func(q db.Querier) error {
		var err error
		stations, err = s.stations.Search(ctx, q, term, s.searchLimit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search stations: %w", err)
	}
	return stations, nil
}

// NormalizeBounds replaces each non-finite coordinate with its world value,
// then falls back to the world when the box is inverted, empty or outside
// lon/lat range.
func NormalizeBounds(xmin, ymin, xmax, ymax float64) models.Bounds {
	b := models.Bounds{
		XMin: orDefault(xmin, models.World.XMin),
		YMin: orDefault(ymin, models.World.YMin),
		XMax: orDefault(xmax, models.World.XMax),
		YMax: orDefault(ymax, models.World.YMax),
	}
	switch {
	case b.XMin >= b.XMax, b.YMin >= b.YMax:
		return models.World
	case b.XMin < -180, b.XMax > 180, b.YMin < -90, b.YMax > 90:
		return models.World
	}
	return b
}

func orDefault(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}
