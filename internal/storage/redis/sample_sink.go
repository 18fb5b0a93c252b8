package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/goodtune/fieldtrack/internal/geo"
	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type sampleSink struct {
	client *redis.Client
	now    func() time.Time
}

// InsertSample appends a sample to the user's location history, scored by
// its capture timestamp
func (s *sampleSink) InsertSample(ctx context.Context, sample storage.LocationSample) error {
	script := redis.NewScript(insertSampleScript)

	member, err := sampleMember(uuid.NewString(), sample)
	if err != nil {
		return err
	}

	keys := []string{locationsKey(sample.UserID), workerKey(sample.UserID), onlineSetKey()}
	args := []interface{}{
		sample.UserID,
		score(sample.Timestamp),
		member,
		strconv.FormatFloat(sample.Latitude, 'f', -1, 64),
		strconv.FormatFloat(sample.Longitude, 'f', -1, 64),
		sample.Timestamp.UTC().Format(time.RFC3339Nano),
		boolFlag(sample.IsOnline),
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// SetOnline sets the worker's presence flag
func (s *sampleSink) SetOnline(ctx context.Context, userID string, online bool) error {
	script := redis.NewScript(setOnlineScript)

	keys := []string{workerKey(userID), onlineSetKey()}
	return script.Run(ctx, s.client, keys, userID, boolFlag(online), score(s.now())).Err()
}

// listSamples returns the user's samples captured within [from, to], oldest first
func listSamples(ctx context.Context, client *redis.Client, userID string, from, to time.Time) ([]storage.LocationSample, error) {
	members, err := client.ZRangeByScore(ctx, locationsKey(userID), &redis.ZRangeBy{
		Min: strconv.FormatFloat(score(from), 'f', -1, 64),
		Max: strconv.FormatFloat(score(to), 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, err
	}

	samples := make([]storage.LocationSample, 0, len(members))
	for _, member := range members {
		sample, err := parseSampleMember(member)
		if err != nil {
			continue
		}
		samples = append(samples, *sample)
	}
	return samples, nil
}

func routeDistanceKm(samples []storage.LocationSample) float64 {
	points := make([]geo.Point, len(samples))
	for i, sample := range samples {
		points[i] = geo.Point{Lat: sample.Latitude, Lng: sample.Longitude}
	}
	return geo.PathKm(points)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
