package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goodtune/fieldtrack/internal/geo"
	"github.com/goodtune/fieldtrack/internal/storage"
)

type sampleSink struct {
	db *sql.DB
}

func (s *sampleSink) InsertSample(ctx context.Context, sample storage.LocationSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_locations (user_id, latitude, longitude, speed, accuracy, timestamp, is_online)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sample.UserID, sample.Latitude, sample.Longitude,
		nullFloat(sample.Speed), nullFloat(sample.Accuracy),
		formatTime(sample.Timestamp), boolToInt(sample.IsOnline))
	if err != nil {
		return fmt.Errorf("insert worker location: %w", err)
	}
	return nil
}

func (s *sampleSink) SetOnline(ctx context.Context, userID string, online bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE worker_locations SET is_online = ? WHERE user_id = ?
	`, boolToInt(online), userID)
	if err != nil {
		return fmt.Errorf("update online flag: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listSamples(ctx context.Context, q queryer, userID string, from, to time.Time) ([]storage.LocationSample, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id, latitude, longitude, speed, accuracy, timestamp, is_online
		FROM worker_locations
		WHERE user_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, id ASC
	`, userID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("query worker locations: %w", err)
	}
	defer rows.Close()

	samples := make([]storage.LocationSample, 0)
	for rows.Next() {
		var (
			sample   storage.LocationSample
			speed    sql.NullFloat64
			accuracy sql.NullFloat64
			ts       string
			online   int
		)
		if err := rows.Scan(&sample.UserID, &sample.Latitude, &sample.Longitude, &speed, &accuracy, &ts, &online); err != nil {
			return nil, fmt.Errorf("scan worker location: %w", err)
		}
		if sample.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if speed.Valid {
			sample.Speed = &speed.Float64
		}
		if accuracy.Valid {
			sample.Accuracy = &accuracy.Float64
		}
		sample.IsOnline = online == 1
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func routeDistanceKm(samples []storage.LocationSample) float64 {
	points := make([]geo.Point, len(samples))
	for i, sample := range samples {
		points[i] = geo.Point{Lat: sample.Latitude, Lng: sample.Longitude}
	}
	return geo.PathKm(points)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
