package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/google/uuid"
)

const sessionColumns = `id, user_id, started_at, ended_at, status, total_distance_km`

type sessionStore struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *sessionStore) CreateActive(ctx context.Context, userID string, startedAt time.Time) (*storage.WorkSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM work_sessions
		WHERE user_id = ? AND status = 'active'
		ORDER BY started_at DESC LIMIT 1
	`, userID))
	switch {
	case err == nil:
		return existing, storage.ErrActiveSessionExists
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	session := &storage.WorkSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: startedAt.UTC(),
		Status:    storage.SessionActive,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO work_sessions (id, user_id, started_at, status)
		VALUES (?, ?, ?, ?)
	`, session.ID, session.UserID, formatTime(session.StartedAt), string(session.Status)); err != nil {
		return nil, fmt.Errorf("insert work session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit work session: %w", err)
	}
	return session, nil
}

func (s *sessionStore) FindMostRecentActive(ctx context.Context, userID string) (*storage.WorkSession, error) {
	return scanSession(s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM work_sessions
		WHERE user_id = ? AND status = 'active'
		ORDER BY started_at DESC LIMIT 1
	`, userID))
}

// Complete stamps ended_at, marks the session completed and records the
// distance covered by the samples captured during the session.
// Completing an already completed session is a no-op.
func (s *sessionStore) Complete(ctx context.Context, id string, endedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	session, err := scanSession(tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM work_sessions WHERE id = ?
	`, id))
	if err != nil {
		return err
	}
	if session.Status == storage.SessionCompleted {
		return nil
	}

	samples, err := listSamples(ctx, tx, session.UserID, session.StartedAt, endedAt)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE work_sessions
		SET ended_at = ?, status = 'completed', total_distance_km = ?
		WHERE id = ?
	`, formatTime(endedAt), routeDistanceKm(samples), id); err != nil {
		return fmt.Errorf("complete work session: %w", err)
	}

	return tx.Commit()
}

func (s *sessionStore) ListRecent(ctx context.Context, userID string, limit int) ([]storage.WorkSession, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM work_sessions
		WHERE user_id = ?
		ORDER BY started_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query work sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]storage.WorkSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

func scanSession(row rowScanner) (*storage.WorkSession, error) {
	var (
		session   storage.WorkSession
		startedAt string
		endedAt   sql.NullString
		status    string
	)
	if err := row.Scan(&session.ID, &session.UserID, &startedAt, &endedAt, &status, &session.TotalDistanceKm); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan work session: %w", err)
	}

	var err error
	if session.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		ended, err := parseTime(endedAt.String)
		if err != nil {
			return nil, err
		}
		session.EndedAt = &ended
	}
	session.Status = storage.SessionStatus(status)

	return &session, nil
}
