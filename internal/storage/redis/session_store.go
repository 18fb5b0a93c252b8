package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type sessionStore struct {
	client *redis.Client
}

// CreateActive creates an active session unless one already exists for the user
func (s *sessionStore) CreateActive(ctx context.Context, userID string, startedAt time.Time) (*storage.WorkSession, error) {
	script := redis.NewScript(createActiveSessionScript)

	id := uuid.NewString()
	startedAt = startedAt.UTC()

	keys := []string{activeSessionKey(userID), sessionKey(id), userSessionsKey(userID)}
	args := []interface{}{id, userID, startedAt.Format(time.RFC3339Nano), score(startedAt)}

	result, err := script.Run(ctx, s.client, keys, args...).Slice()
	if err != nil {
		return nil, err
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected create session result: %v", result)
	}

	created, _ := result[0].(int64)
	sessionID, _ := result[1].(string)
	if created == 1 {
		return &storage.WorkSession{
			ID:        sessionID,
			UserID:    userID,
			StartedAt: startedAt,
			Status:    storage.SessionActive,
		}, nil
	}

	existing, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return existing, storage.ErrActiveSessionExists
}

// FindMostRecentActive returns the user's active session
func (s *sessionStore) FindMostRecentActive(ctx context.Context, userID string) (*storage.WorkSession, error) {
	id, err := s.client.Get(ctx, activeSessionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.get(ctx, id)
}

// Complete marks the session completed and stores the distance travelled
// during it
func (s *sessionStore) Complete(ctx context.Context, id string, endedAt time.Time) error {
	session, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	distance := session.TotalDistanceKm
	if session.Status != storage.SessionCompleted {
		samples, err := listSamples(ctx, s.client, session.UserID, session.StartedAt, endedAt)
		if err != nil {
			return err
		}
		distance = routeDistanceKm(samples)
	}

	script := redis.NewScript(completeSessionScript)
	keys := []string{sessionKey(id), activeSessionKey(session.UserID)}
	args := []interface{}{
		id,
		endedAt.UTC().Format(time.RFC3339Nano),
		strconv.FormatFloat(distance, 'f', -1, 64),
	}

	found, err := script.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return err
	}
	if found == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListRecent returns the user's sessions, newest first
func (s *sessionStore) ListRecent(ctx context.Context, userID string, limit int) ([]storage.WorkSession, error) {
	if limit <= 0 {
		limit = 20
	}

	ids, err := s.client.ZRevRange(ctx, userSessionsKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []storage.WorkSession{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	sessions := make([]storage.WorkSession, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		session, err := parseWorkSession(data)
		if err == nil {
			sessions = append(sessions, *session)
		}
	}

	return sessions, nil
}

func (s *sessionStore) get(ctx context.Context, id string) (*storage.WorkSession, error) {
	data, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseWorkSession(data)
}
