package database

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/fieldtrack/internal/storage"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the SQLite database connection and implements storage.Store
// with the worker_locations and work_sessions tables.
type DB struct {
	*sql.DB
}

// New creates a new database connection and runs migrations
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite limitation
	db.SetMaxIdleConns(1)

	// Run migrations
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{db}, nil
}

// Samples returns the location sample sink.
func (db *DB) Samples() storage.SampleSink { return &sampleSink{db: db.DB} }

// Sessions returns the work session store.
func (db *DB) Sessions() storage.SessionStore { return &sessionStore{db: db.DB} }

// runMigrations applies all database migrations
func runMigrations(db *sql.DB) error {
	// Create migrations table
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	migrations := getMigrations()
	versions := make([]int, 0, len(migrations))
	for version := range migrations {
		versions = append(versions, version)
	}
	sort.Ints(versions)

	// Apply migrations in order
	for _, version := range versions {
		if version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(migrations[version]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

// getMigrations returns all database migrations
func getMigrations() map[int]string {
	return map[int]string{
		1: migration001WorkerLocations,
		2: migration002WorkSessions,
		3: migration003OneActiveSession,
	}
}

const migration001WorkerLocations = `
CREATE TABLE IF NOT EXISTS worker_locations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	speed REAL,
	accuracy REAL,
	timestamp TEXT NOT NULL, -- capture instant, not insert time
	is_online INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX idx_locations_user_ts ON worker_locations(user_id, timestamp);
`

const migration002WorkSessions = `
CREATE TABLE IF NOT EXISTS work_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	status TEXT NOT NULL DEFAULT 'active', -- active or completed
	total_distance_km REAL NOT NULL DEFAULT 0
);

CREATE INDEX idx_sessions_user_started ON work_sessions(user_id, started_at);
`

const migration003OneActiveSession = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active
	ON work_sessions(user_id) WHERE status = 'active';
`

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
