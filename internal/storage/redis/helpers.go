package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/fieldtrack/internal/storage"
)

const keyPrefix = "fieldtrack"

func locationsKey(userID string) string { return fmt.Sprintf("%s:locations:%s", keyPrefix, userID) }
func workerKey(userID string) string    { return fmt.Sprintf("%s:worker:%s", keyPrefix, userID) }
func onlineSetKey() string              { return keyPrefix + ":workers:online" }
func sessionKey(id string) string       { return fmt.Sprintf("%s:session:%s", keyPrefix, id) }
func activeSessionKey(userID string) string {
	return fmt.Sprintf("%s:sessions:active:%s", keyPrefix, userID)
}
func userSessionsKey(userID string) string {
	return fmt.Sprintf("%s:sessions:user:%s", keyPrefix, userID)
}

// score orders samples and sessions by their own timestamps.
func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// sampleMember encodes a sample as a sorted set member. The id prefix keeps
// identical samples from collapsing into one member.
func sampleMember(id string, sample storage.LocationSample) (string, error) {
	payload, err := json.Marshal(sample)
	if err != nil {
		return "", fmt.Errorf("failed to encode sample: %w", err)
	}
	return id + "|" + string(payload), nil
}

func parseSampleMember(member string) (*storage.LocationSample, error) {
	_, payload, ok := strings.Cut(member, "|")
	if !ok {
		return nil, fmt.Errorf("malformed sample member")
	}
	var sample storage.LocationSample
	if err := json.Unmarshal([]byte(payload), &sample); err != nil {
		return nil, fmt.Errorf("failed to decode sample: %w", err)
	}
	return &sample, nil
}

// parseWorkSession converts a Redis hash to WorkSession
func parseWorkSession(data map[string]string) (*storage.WorkSession, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startedAt, err := time.Parse(time.RFC3339Nano, data["started_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}

	session := &storage.WorkSession{
		ID:        data["id"],
		UserID:    data["user_id"],
		StartedAt: startedAt,
		Status:    storage.SessionStatus(data["status"]),
	}

	if raw := data["ended_at"]; raw != "" {
		endedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ended_at: %w", err)
		}
		session.EndedAt = &endedAt
	}

	if raw := data["total_distance_km"]; raw != "" {
		distance, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse total_distance_km: %w", err)
		}
		session.TotalDistanceKm = distance
	}

	return session, nil
}
