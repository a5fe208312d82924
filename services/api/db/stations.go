package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dijital/hydro-viewer/services/api/models"
)

const stationColumns = `id, name, prov, timezone, ST_X(geom) AS lon, ST_Y(geom) AS lat, last_update`

const getStationSQL = `
    SELECT ` + stationColumns + `
    FROM hydro.stations
    WHERE id = $1
`

const randomStationSQL = `
    SELECT ` + stationColumns + `
    FROM hydro.stations
    ORDER BY random()
    LIMIT 1
`

const stationsInBoundsSQL = `
    SELECT ` + stationColumns + `
    FROM hydro.stations
    WHERE geom && ST_MakeEnvelope($1, $2, $3, $4, 4326)
    ORDER BY id
`

const searchStationsSQL = `
    SELECT ` + stationColumns + `
    FROM hydro.stations
    ORDER BY similarity(name, $1) DESC, id
    LIMIT $2
`

// SKIP LOCKED lets a concurrent refresher of the same station fall through
// to the cached rows instead of queueing behind the in-flight download.
const lockStationSQL = `
    SELECT ` + stationColumns + `
    FROM hydro.stations
    WHERE id = $1
    FOR UPDATE SKIP LOCKED
`

const touchLastUpdateSQL = `
    UPDATE hydro.stations
    SET last_update = GREATEST(COALESCE(last_update, $2), $2)
    WHERE id = $1
`

const upsertStationSQL = `
    INSERT INTO hydro.stations (id, name, prov, timezone, geom)
    VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326))
    ON CONFLICT (id) DO UPDATE
    SET name = EXCLUDED.name,
        prov = EXCLUDED.prov,
        timezone = EXCLUDED.timezone,
        geom = EXCLUDED.geom
`

const countStationsSQL = `SELECT COUNT(*) FROM hydro.stations`

const listStationIDsSQL = `SELECT id FROM hydro.stations WHERE prov <> '' ORDER BY prov, id`

// StationRepository owns the hydro.stations table.
type StationRepository struct{}

// NewStationRepository returns a repository for station records.
func NewStationRepository() *StationRepository {
	return &StationRepository{}
}

// Get returns the station with the given id, or nil when it does not exist.
func (r *StationRepository) Get(ctx context.Context, q Querier, id string) (*models.Station, error) {
	return scanOptionalStation(q.QueryRow(ctx, getStationSQL, id))
}

// Random returns an arbitrary station, or nil when the catalog is empty.
func (r *StationRepository) Random(ctx context.Context, q Querier) (*models.Station, error) {
	return scanOptionalStation(q.QueryRow(ctx, randomStationSQL))
}

// InBounds returns every station positioned inside b, edges included.
func (r *StationRepository) InBounds(ctx context.Context, q Querier, b models.Bounds) ([]models.Station, error) {
	rows, err := q.Query(ctx, stationsInBoundsSQL, b.XMin, b.YMin, b.XMax, b.YMax)
	if err != nil {
		return nil, err
	}
	return scanStations(rows)
}

// Search ranks stations by trigram similarity of their name to term.
func (r *StationRepository) Search(ctx context.Context, q Querier, term string, limit int) ([]models.Station, error) {
	rows, err := q.Query(ctx, searchStationsSQL, term, limit)
	if err != nil {
		return nil, err
	}
	return scanStations(rows)
}

// LockForRefresh row-locks the station for the rest of the transaction held
// by q. It returns nil without error when the station does not exist or is
// already locked by another session.
func (r *StationRepository) LockForRefresh(ctx context.Context, q Querier, id string) (*models.Station, error) {
	return scanOptionalStation(q.QueryRow(ctx, lockStationSQL, id))
}

// TouchLastUpdate advances the station's last-update stamp to at. An older
// value never replaces a newer one.
func (r *StationRepository) TouchLastUpdate(ctx context.Context, q Querier, id string, at time.Time) error {
	_, err := q.Exec(ctx, touchLastUpdateSQL, id, at.UTC())
	return err
}

// Upsert inserts or refreshes catalog rows. The last-update stamp of an
// existing station is left untouched.
func (r *StationRepository) Upsert(ctx context.Context, q Querier, stations []models.StationRecord) error {
	if len(stations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range stations {
		batch.Queue(upsertStationSQL, s.ID, s.Name, s.Province, s.Timezone, s.Lon, s.Lat)
	}

	res := q.SendBatch(ctx, batch)
	defer res.Close()

	for range stations {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of stations in the catalog.
func (r *StationRepository) Count(ctx context.Context, q Querier) (int, error) {
	var n int
	err := q.QueryRow(ctx, countStationsSQL).Scan(&n)
	return n, err
}

// ListIDs returns the ids of every station that has a province.
func (r *StationRepository) ListIDs(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx, listStationIDsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanOptionalStation(row pgx.Row) (*models.Station, error) {
	var st models.Station
	if err := row.Scan(
		&st.ID,
		&st.Name,
		&st.Province,
		&st.Timezone,
		&st.Lon,
		&st.Lat,
		&st.LastUpdate,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

func scanStations(rows pgx.Rows) ([]models.Station, error) {
	defer rows.Close()

	stations := make([]models.Station, 0)
	for rows.Next() {
		var st models.Station
		if err := rows.Scan(
			&st.ID,
			&st.Name,
			&st.Province,
			&st.Timezone,
			&st.Lon,
			&st.Lat,
			&st.LastUpdate,
		); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}
