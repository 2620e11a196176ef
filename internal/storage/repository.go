// Package storage is the client of the canonical spatial store: a PostgreSQL
// database shared by all submitters. The contract is strictly idempotent
// upsert-by-reading-id plus bounded read queries; server-side conflict
// handling absorbs concurrent writes from independent devices.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/geo"
	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/reading"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertReadingSQL = `INSERT INTO depth_readings (
        reading_id,
        submitter_id,
        lat,
        lon,
        raw_depth,
        corrected_depth,
        measured_at,
        gps_accuracy,
        speed,
        method,
        tide_station,
        tide_level,
        chart_datum,
        tide_multiplier,
        score_gps,
        score_env,
        score_consistency,
        score_overall,
        confidence,
        safety,
        reliability,
        meta
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
    )
    ON CONFLICT (reading_id) DO UPDATE
    SET
        corrected_depth = EXCLUDED.corrected_depth,
        tide_station    = EXCLUDED.tide_station,
        tide_level      = EXCLUDED.tide_level,
        chart_datum     = EXCLUDED.chart_datum,
        tide_multiplier = EXCLUDED.tide_multiplier,
        score_gps       = EXCLUDED.score_gps,
        score_env       = EXCLUDED.score_env,
        score_consistency = EXCLUDED.score_consistency,
        score_overall   = EXCLUDED.score_overall,
        confidence      = EXCLUDED.confidence,
        safety          = EXCLUDED.safety,
        reliability     = EXCLUDED.reliability,
        meta            = EXCLUDED.meta;`

	readingColumns = `reading_id,
        submitter_id,
        lat,
        lon,
        raw_depth,
        corrected_depth,
        measured_at,
        gps_accuracy,
        speed,
        method,
        tide_station,
        tide_level,
        chart_datum,
        tide_multiplier,
        score_gps,
        score_env,
        score_consistency,
        score_overall,
        confidence,
        safety,
        reliability,
        meta`

	queryBoxReadingsSQL = `SELECT ` + readingColumns + `
    FROM depth_readings
    WHERE lat BETWEEN $1 AND $2
      AND lon BETWEEN $3 AND $4
      AND measured_at >= $5
    ORDER BY measured_at DESC
    LIMIT $6;`

	listRecentReadingsSQL = `SELECT ` + readingColumns + `
    FROM depth_readings
    ORDER BY measured_at DESC
    LIMIT $1;`

	listReadingsBetweenSQL = `SELECT ` + readingColumns + `
    FROM depth_readings
    WHERE measured_at >= $1 AND measured_at < $2
    ORDER BY measured_at ASC;`

	countReadingsSQL = `SELECT COUNT(*) FROM depth_readings;`

	queryGridCellsSQL = `SELECT
        floor(lat / $5)::bigint AS lat_idx,
        floor(lon / $5)::bigint AS lon_idx,
        avg(corrected_depth),
        min(corrected_depth),
        max(corrected_depth),
        count(*),
        avg(confidence)
    FROM depth_readings
    WHERE lat BETWEEN $1 AND $2
      AND lon BETWEEN $3 AND $4
    GROUP BY lat_idx, lon_idx
    ORDER BY lat_idx, lon_idx;`

	insertAlertSQL = `INSERT INTO safety_alerts (
        alert_id,
        alert_type,
        severity,
        lat,
        lon,
        message
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (alert_id) DO UPDATE
    SET message = EXCLUDED.message
    RETURNING id, alert_id, alert_type, severity, lat, lon, message, created_at;`

	listRecentAlertsSQL = `SELECT
        id, alert_id, alert_type, severity, lat, lon, message, created_at
    FROM safety_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM safety_alerts WHERE created_at < $1;`
)

// maxRadiusRows bounds how many rows a radius query pulls before the
// in-process distance filter.
const maxRadiusRows = 500

// ReadingStore defines operations for canonical depth reading persistence.
type ReadingStore interface {
	UpsertReading(ctx context.Context, r reading.ProcessedDepthReading) error
	QueryRadius(ctx context.Context, center geo.Point, radiusMeters float64, since time.Time) ([]reading.ProcessedDepthReading, error)
	QueryBoundingBox(ctx context.Context, bounds geo.Bounds, cellSizeDeg float64) ([]GridCell, error)
	ListRecentReadings(ctx context.Context, limit int) ([]reading.ProcessedDepthReading, error)
	CountReadings(ctx context.Context) (int64, error)
}

// AlertAuditStore defines operations for alert auditing.
type AlertAuditStore interface {
	InsertAlertRecord(ctx context.Context, rec AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates access to depth readings and alert audit records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertReading persists or updates a reading keyed by its id. Replaying the
// same reading id is a no-op with respect to row count.
func (s *Store) UpsertReading(ctx context.Context, r reading.ProcessedDepthReading) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	meta, err := json.Marshal(r.Meta)
	if err != nil {
		return fmt.Errorf("encode reading meta: %w", err)
	}

	var speed interface{}
	if r.Candidate.SpeedMPS != nil {
		speed = *r.Candidate.SpeedMPS
	}

	var tideStation, tideLevel, chartDatum, tideMult interface{}
	if r.Tide != nil {
		tideStation = r.Tide.StationID
		tideLevel = r.Tide.TideLevelMeters
		chartDatum = r.Tide.ChartDatumMeters
		tideMult = r.Tide.ConfidenceMultiplier
	}

	_, execErr := pool.Exec(ctx, upsertReadingSQL,
		r.ID,
		r.Candidate.SubmitterID,
		r.Candidate.Position.Lat,
		r.Candidate.Position.Lon,
		r.Candidate.DepthMeters,
		r.Corrected,
		r.Candidate.Time(),
		r.Candidate.GPSAccuracy,
		speed,
		string(r.Candidate.Method),
		tideStation,
		tideLevel,
		chartDatum,
		tideMult,
		r.Score.GPSAccuracy,
		r.Score.Environmental,
		r.Score.DataConsistency,
		r.Score.Overall,
		r.Confidence,
		string(r.Safety),
		string(r.Reliability),
		meta,
	)
	if execErr != nil {
		return fmt.Errorf("upsert reading: %w", execErr)
	}
	return nil
}

// QueryRadius returns readings within radiusMeters of center measured at or
// after since. A bounding-box SQL prefilter narrows candidates; exact
// distance is checked in-process.
func (s *Store) QueryRadius(ctx context.Context, center geo.Point, radiusMeters float64, since time.Time) ([]reading.ProcessedDepthReading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	box := geo.BoundsAround(center, radiusMeters)
	rows, queryErr := pool.Query(ctx, queryBoxReadingsSQL,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, since, maxRadiusRows)
	if queryErr != nil {
		return nil, fmt.Errorf("query radius: %w", queryErr)
	}
	defer rows.Close()

	readings := make([]reading.ProcessedDepthReading, 0)
	for rows.Next() {
		r, scanErr := scanReading(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		if geo.WithinRadius(center, r.Candidate.Position, radiusMeters) {
			readings = append(readings, r)
		}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

// QueryBoundingBox aggregates readings inside bounds into grid cells of
// cellSizeDeg degrees.
func (s *Store) QueryBoundingBox(ctx context.Context, bounds geo.Bounds, cellSizeDeg float64) ([]GridCell, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if cellSizeDeg <= 0 {
		cellSizeDeg = 0.001
	}

	rows, queryErr := pool.Query(ctx, queryGridCellsSQL,
		bounds.MinLat, bounds.MaxLat, bounds.MinLon, bounds.MaxLon, cellSizeDeg)
	if queryErr != nil {
		return nil, fmt.Errorf("query bounding box: %w", queryErr)
	}
	defer rows.Close()

	cells := make([]GridCell, 0)
	for rows.Next() {
		var cell GridCell
		if err := rows.Scan(
			&cell.LatIndex,
			&cell.LonIndex,
			&cell.AvgDepth,
			&cell.MinDepth,
			&cell.MaxDepth,
			&cell.Count,
			&cell.AvgConfidence,
		); err != nil {
			return nil, err
		}
		cell.CenterLat = (float64(cell.LatIndex) + 0.5) * cellSizeDeg
		cell.CenterLon = (float64(cell.LonIndex) + 0.5) * cellSizeDeg
		cells = append(cells, cell)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return cells, nil
}

// ListRecentReadings lists the most recent readings by measurement time.
func (s *Store) ListRecentReadings(ctx context.Context, limit int) ([]reading.ProcessedDepthReading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentReadingsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent readings: %w", queryErr)
	}
	defer rows.Close()

	readings := make([]reading.ProcessedDepthReading, 0, limit)
	for rows.Next() {
		r, scanErr := scanReading(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		readings = append(readings, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

// ListReadingsBetween lists readings measured in [from, to) in chronological
// order.
func (s *Store) ListReadingsBetween(ctx context.Context, from, to time.Time) ([]reading.ProcessedDepthReading, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listReadingsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list readings between: %w", queryErr)
	}
	defer rows.Close()

	readings := make([]reading.ProcessedDepthReading, 0)
	for rows.Next() {
		r, scanErr := scanReading(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		readings = append(readings, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return readings, nil
}

// CountReadings counts stored readings.
func (s *Store) CountReadings(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countReadingsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count readings: %w", scanErr)
	}
	return count, nil
}

// InsertAlertRecord persists an alert emission for auditing.
func (s *Store) InsertAlertRecord(ctx context.Context, rec AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		rec.AlertID,
		rec.Type,
		rec.Severity,
		rec.Position.Lat,
		rec.Position.Lon,
		rec.Message,
	)

	var out AlertRecord
	if scanErr := row.Scan(
		&out.ID,
		&out.AlertID,
		&out.Type,
		&out.Severity,
		&out.Position.Lat,
		&out.Position.Lon,
		&out.Message,
		&out.CreatedAt,
	); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert record: %w", scanErr)
	}
	return out, nil
}

// ListRecentAlerts lists most recent alert audit records.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.AlertID,
			&rec.Type,
			&rec.Severity,
			&rec.Position.Lat,
			&rec.Position.Lon,
			&rec.Message,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alert records.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func scanReading(rows pgx.Rows) (reading.ProcessedDepthReading, error) {
	var (
		r           reading.ProcessedDepthReading
		measuredAt  time.Time
		speed       sql.NullFloat64
		method      string
		tideStation sql.NullString
		tideLevel   sql.NullFloat64
		chartDatum  sql.NullFloat64
		tideMult    sql.NullFloat64
		safetyStr   string
		reliability string
		meta        []byte
	)

	if err := rows.Scan(
		&r.ID,
		&r.Candidate.SubmitterID,
		&r.Candidate.Position.Lat,
		&r.Candidate.Position.Lon,
		&r.Candidate.DepthMeters,
		&r.Corrected,
		&measuredAt,
		&r.Candidate.GPSAccuracy,
		&speed,
		&method,
		&tideStation,
		&tideLevel,
		&chartDatum,
		&tideMult,
		&r.Score.GPSAccuracy,
		&r.Score.Environmental,
		&r.Score.DataConsistency,
		&r.Score.Overall,
		&r.Confidence,
		&safetyStr,
		&reliability,
		&meta,
	); err != nil {
		return reading.ProcessedDepthReading{}, err
	}

	r.Candidate.TimestampMs = measuredAt.UnixMilli()
	r.Candidate.Method = reading.Method(method)
	r.Safety = reading.SafetyStatus(safetyStr)
	r.Reliability = reading.Reliability(reliability)

	if speed.Valid {
		v := speed.Float64
		r.Candidate.SpeedMPS = &v
	}
	if tideStation.Valid {
		r.Tide = &reading.TideCorrection{
			StationID:            tideStation.String,
			TideLevelMeters:      tideLevel.Float64,
			ChartDatumMeters:     chartDatum.Float64,
			CorrectedDepthMeters: r.Corrected,
			ConfidenceMultiplier: tideMult.Float64,
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &r.Meta); err != nil {
			return reading.ProcessedDepthReading{}, fmt.Errorf("decode reading meta: %w", err)
		}
	}

	return r, nil
}
