package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a work session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// UnmarshalJSON implements json.Unmarshaler to normalize status to lowercase.
func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	normalized := SessionStatus(strings.ToLower(raw))
	switch normalized {
	case SessionActive, SessionCompleted:
		*s = normalized
		return nil
	default:
		return fmt.Errorf("invalid session status: %s (must be active or completed)", raw)
	}
}

// LocationSample is one observed position of a worker.
type LocationSample struct {
	UserID    string    `json:"user_id" validate:"required"`
	Latitude  float64   `json:"latitude" validate:"latitude"`
	Longitude float64   `json:"longitude" validate:"longitude"`
	Speed     *float64  `json:"speed"`    // meters/second, nil when the sensor does not report it
	Accuracy  *float64  `json:"accuracy"` // meters
	Timestamp time.Time `json:"timestamp" validate:"required"`
	IsOnline  bool      `json:"is_online"`
}

// WorkSession is a bounded period of active tracking for one worker.
type WorkSession struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	Status          SessionStatus `json:"status"`
	TotalDistanceKm float64       `json:"total_distance_km"`
}

// Duration returns how long the session lasted, or zero while it is active.
func (s *WorkSession) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}
