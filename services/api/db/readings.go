package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dijital/hydro-viewer/services/api/models"
)

const upsertReadingSQL = `
    INSERT INTO hydro.readings (station_id, read_time, level, discharge, ingested_at)
    VALUES ($1, $2, $3, $4, NOW())
    ON CONFLICT (station_id, read_time) DO UPDATE
    SET level = EXCLUDED.level,
        discharge = EXCLUDED.discharge,
        ingested_at = NOW()
`

// The inner query keeps the newest reading of each hour, newest hours first;
// the outer one restores chronological order for plotting.
const latestPerHourSQL = `
    SELECT read_time, level, discharge
    FROM (
        SELECT DISTINCT ON (date_trunc('hour', read_time AT TIME ZONE 'UTC'))
            read_time, level, discharge
        FROM hydro.readings
        WHERE station_id = $1
        ORDER BY date_trunc('hour', read_time AT TIME ZONE 'UTC') DESC, read_time DESC
        LIMIT $2
    ) latest
    ORDER BY read_time
`

const countReadingsSQL = `SELECT COUNT(*) FROM hydro.readings WHERE station_id = $1`

// ReadingRepository owns the hydro.readings table.
type ReadingRepository struct{}

// NewReadingRepository returns a repository for reading rows.
func NewReadingRepository() *ReadingRepository {
	return &ReadingRepository{}
}

// Upsert writes readings for a station keyed by (station, read time), so
// ingesting the same hour twice overwrites instead of duplicating.
func (r *ReadingRepository) Upsert(ctx context.Context, q Querier, stationID string, readings []models.ReadingRecord) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, rd := range readings {
		batch.Queue(upsertReadingSQL, stationID, rd.ReadTime.UTC(), rd.Level, rd.Discharge)
	}

	res := q.SendBatch(ctx, batch)
	defer res.Close()

	for range readings {
		if _, err := res.Exec(); err != nil {
			return 0, err
		}
	}
	return len(readings), nil
}

// LatestPerHour returns up to n readings, one per hour (the latest within
// each hour), ordered oldest to newest.
func (r *ReadingRepository) LatestPerHour(ctx context.Context, q Querier, stationID string, n int) ([]models.Reading, error) {
	rows, err := q.Query(ctx, latestPerHourSQL, stationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]models.Reading, 0, n)
	for rows.Next() {
		var rd models.Reading
		if err := rows.Scan(&rd.ReadTime, &rd.Level, &rd.Discharge); err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}
	return readings, rows.Err()
}

// Count returns the number of stored readings for a station.
func (r *ReadingRepository) Count(ctx context.Context, q Querier, stationID string) (int, error) {
	var n int
	err := q.QueryRow(ctx, countReadingsSQL, stationID).Scan(&n)
	return n, err
}
