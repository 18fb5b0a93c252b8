package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrActiveSessionExists is returned by SessionStore.CreateActive when the
// user already has an active work session.
var ErrActiveSessionExists = errors.New("storage: active work session already exists")

// Store represents the root interface of the hosted store the agent reports to.
type Store interface {
	Close() error
	Samples() SampleSink
	Sessions() SessionStore
}

// SampleSink receives location samples.
type SampleSink interface {
	InsertSample(ctx context.Context, sample LocationSample) error
	// SetOnline sets the worker's online flag.
	SetOnline(ctx context.Context, userID string, online bool) error
}

// SessionStore manages work session records.
type SessionStore interface {
	// CreateActive creates an active session for the user. When one is
	// already active it returns that session together with ErrActiveSessionExists.
	CreateActive(ctx context.Context, userID string, startedAt time.Time) (*WorkSession, error)
	FindMostRecentActive(ctx context.Context, userID string) (*WorkSession, error)
	Complete(ctx context.Context, id string, endedAt time.Time) error
	ListRecent(ctx context.Context, userID string, limit int) ([]WorkSession, error)
}

// KeyValueStore is the device-local durable key-value storage.
// It is not assumed to be transactional across calls.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}
