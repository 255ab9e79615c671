// Package store archives observed hourly weather in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/timeseries"
)

const schema = `
CREATE TABLE IF NOT EXISTS hourly_observations (
    lat            DOUBLE PRECISION NOT NULL,
    lon            DOUBLE PRECISION NOT NULL,
    observed_at    TIMESTAMPTZ      NOT NULL,
    temperature_c  DOUBLE PRECISION,
    humidity_pct   DOUBLE PRECISION,
    wind_speed_kmh DOUBLE PRECISION,
    precipitation  DOUBLE PRECISION,
    weather_code   INTEGER,
    ingested_at    TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
    PRIMARY KEY (lat, lon, observed_at)
)`

const upsertObservation = `INSERT INTO hourly_observations (lat, lon, observed_at, temperature_c, humidity_pct, wind_speed_kmh, precipitation, weather_code)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (lat, lon, observed_at) DO UPDATE
SET temperature_c = EXCLUDED.temperature_c,
    humidity_pct = EXCLUDED.humidity_pct,
    wind_speed_kmh = EXCLUDED.wind_speed_kmh,
    precipitation = EXCLUDED.precipitation,
    weather_code = EXCLUDED.weather_code,
    ingested_at = NOW()`

// Archive writes observations to PostgreSQL through a connection pool.
type Archive struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and creates the table if needed.
func Open(ctx context.Context, databaseURL string) (*Archive, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &Archive{pool: pool}, nil
}

// Observation is one archived hour.
type Observation struct {
	Lat           float64
	Lon           float64
	ObservedAt    time.Time
	Temperature   *float64
	Humidity      *float64
	WindSpeed     *float64
	Precipitation *float64
	WeatherCode   *int
}

// Observations converts a history payload into archive rows. Wall-clock
// timestamps are shifted back to UTC instants using the payload's offset.
// Records whose timestamp does not parse are counted in skipped.
func Observations(lat, lon float64, p models.WeatherPayload) (rows []Observation, skipped int) {
	lat, lon = roundCoord(lat), roundCoord(lon)
	offset := time.Duration(p.UTCOffsetSeconds) * time.Second
	rows = make([]Observation, 0, len(p.Hourly))
	for _, r := range p.Hourly {
		t, err := timeseries.ParseTime(r.Time)
		if err != nil {
			skipped++
			continue
		}
		rows = append(rows, Observation{
			Lat:           lat,
			Lon:           lon,
			ObservedAt:    timeseries.KeyOf(t.Add(-offset)).Time(),
			Temperature:   r.Temperature,
			Humidity:      r.Humidity,
			WindSpeed:     r.WindSpeed,
			Precipitation: r.Precipitation,
			WeatherCode:   r.WeatherCode,
		})
	}
	return rows, skipped
}

func roundCoord(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// SaveObservations upserts the hourly history in p and returns the number of rows written.
func (a *Archive) SaveObservations(ctx context.Context, lat, lon float64, p models.WeatherPayload) (int64, error) {
	rows, _ := Observations(lat, lon, p)
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, o := range rows {
		batch.Queue(upsertObservation, o.Lat, o.Lon, o.ObservedAt, o.Temperature, o.Humidity, o.WindSpeed, o.Precipitation, o.WeatherCode)
	}

	res := a.pool.SendBatch(ctx, batch)
	defer res.Close()

	var written int64
	for range rows {
		tag, err := res.Exec()
		if err != nil {
			return written, fmt.Errorf("archive observations: %w", err)
		}
		written += tag.RowsAffected()
	}
	return written, nil
}

// Since returns archived observations for a location at or after since, oldest first.
func (a *Archive) Since(ctx context.Context, lat, lon float64, since time.Time) ([]Observation, error) {
	rows, err := a.pool.Query(ctx, `
SELECT lat, lon, observed_at, temperature_c, humidity_pct, wind_speed_kmh, precipitation, weather_code
FROM hourly_observations
WHERE lat = $1 AND lon = $2 AND observed_at >= $3
ORDER BY observed_at`, roundCoord(lat), roundCoord(lon), since)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.Lat, &o.Lon, &o.ObservedAt, &o.Temperature, &o.Humidity, &o.WindSpeed, &o.Precipitation, &o.WeatherCode); err != nil {
			return nil, err
		}
		o.ObservedAt = o.ObservedAt.UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

// Ping checks the database is reachable. Used for health checks.
func (a *Archive) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Close releases the pool.
func (a *Archive) Close() {
	a.pool.Close()
}
