package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/fieldtrack/internal/location"
	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/goodtune/fieldtrack/internal/tracking"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	mu sync.Mutex

	permissions tracking.PermissionResult
	startResult tracking.Result
	stopResult  tracking.Result
	coords      *location.Coords
	status      tracking.Status
	statusErr   error
	queued      []tracking.QueuedSample
	drain       tracking.DrainResult
	sessions    []storage.WorkSession
	sessionsErr error

	started    []string
	stopped    []string
	sessionReq []int
	ctxErrs    []error
}

func (f *fakeTracker) RequestPermissions(context.Context) tracking.PermissionResult {
	return f.permissions
}

func (f *fakeTracker) Start(ctx context.Context, userID string) tracking.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, userID)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return f.startResult
}

func (f *fakeTracker) Stop(ctx context.Context, userID string) tracking.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, userID)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return f.stopResult
}

func (f *fakeTracker) CurrentLocation(context.Context) *location.Coords { return f.coords }

func (f *fakeTracker) Status(context.Context) (tracking.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeTracker) QueuedSamples(context.Context) ([]tracking.QueuedSample, error) {
	return f.queued, nil
}

func (f *fakeTracker) SyncOffline(context.Context) tracking.DrainResult { return f.drain }

func (f *fakeTracker) RecentSessions(_ context.Context, userID string, limit int) ([]storage.WorkSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionReq = append(f.sessionReq, limit)
	if userID == "" {
		return nil, tracking.ErrUserIDRequired
	}
	return f.sessions, f.sessionsErr
}

func granted() tracking.PermissionResult {
	return tracking.PermissionResult{Granted: true, Message: tracking.MessagePermissionsGranted}
}

func newTestServer(t *testing.T, tracker Tracker) *Server {
	t.Helper()
	return NewServer(Config{ListenAddr: "127.0.0.1:0"}, tracker, zerolog.Nop())
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeTracker{})

	w := do(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestRequestPermissions(t *testing.T) {
	t.Run("granted", func(t *testing.T) {
		srv := newTestServer(t, &fakeTracker{permissions: granted()})

		w := do(t, srv, http.MethodPost, "/api/v1/permissions", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["granted"])
		assert.Equal(t, tracking.MessagePermissionsGranted, body["message"])
	})

	t.Run("denied", func(t *testing.T) {
		srv := newTestServer(t, &fakeTracker{permissions: tracking.PermissionResult{
			Message: tracking.MessageBackgroundDenied,
		}})

		w := do(t, srv, http.MethodPost, "/api/v1/permissions", nil)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, tracking.MessageBackgroundDenied, decode(t, w)["message"])
	})
}

func TestStartTracking(t *testing.T) {
	t.Run("success returns initial fix", func(t *testing.T) {
		tracker := &fakeTracker{
			permissions: granted(),
			startResult: tracking.Result{Success: true},
			coords:      &location.Coords{Latitude: -6.2, Longitude: 106.8},
		}
		srv := newTestServer(t, tracker)

		w := do(t, srv, http.MethodPost, "/api/v1/tracking/start", map[string]string{"user_id": "worker-1"})

		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		loc, ok := body["location"].(map[string]any)
		require.True(t, ok, "expected location object, got %v", body["location"])
		assert.InDelta(t, -6.2, loc["latitude"], 1e-9)
		assert.Equal(t, []string{"worker-1"}, tracker.started)
	})

	t.Run("success without fix", func(t *testing.T) {
		tracker := &fakeTracker{permissions: granted(), startResult: tracking.Result{Success: true}}
		srv := newTestServer(t, tracker)

		w := do(t, srv, http.MethodPost, "/api/v1/tracking/start", map[string]string{"user_id": "worker-1"})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, decode(t, w)["location"])
	})

	t.Run("missing user", func(t *testing.T) {
		tracker := &fakeTracker{permissions: granted()}
		srv := newTestServer(t, tracker)

		w := do(t, srv, http.MethodPost, "/api/v1/tracking/start", map[string]string{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_request", decode(t, w)["error"])
		assert.Empty(t, tracker.started)
	})

	t.Run("permission denied skips start", func(t *testing.T) {
		tracker := &fakeTracker{permissions: tracking.PermissionResult{Message: tracking.MessageForegroundDenied}}
		srv := newTestServer(t, tracker)

		w := do(t, srv, http.MethodPost, "/api/v1/tracking/start", map[string]string{"user_id": "worker-1"})

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, tracking.MessageForegroundDenied, decode(t, w)["error"])
		assert.Empty(t, tracker.started)
	})

	t.Run("start failure", func(t *testing.T) {
		tracker := &fakeTracker{
			permissions: granted(),
			startResult: tracking.Result{Error: "remote store unavailable"},
		}
		srv := newTestServer(t, tracker)

		w := do(t, srv, http.MethodPost, "/api/v1/tracking/start", map[string]string{"user_id": "worker-1"})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "remote store unavailable", body["error"])
	})
}

func TestStopTracking(t *testing.T) {
	tracker := &fakeTracker{stopResult: tracking.Result{Success: true}}
	srv := newTestServer(t, tracker)

	w := do(t, srv, http.MethodPost, "/api/v1/tracking/stop", map[string]string{"user_id": "worker-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])
	assert.Equal(t, []string{"worker-1"}, tracker.stopped)

	tracker.stopResult = tracking.Result{Error: "boom"}
	w = do(t, srv, http.MethodPost, "/api/v1/tracking/stop", map[string]string{"user_id": "worker-1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStartStopSurviveClientDisconnect(t *testing.T) {
	tracker := &fakeTracker{
		permissions: granted(),
		startResult: tracking.Result{Success: true},
		stopResult:  tracking.Result{Success: true},
	}
	srv := newTestServer(t, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, path := range []string{"/api/v1/tracking/start", "/api/v1/tracking/stop"} {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(`{"user_id":"worker-1"}`))).WithContext(ctx)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	assert.Equal(t, []string{"worker-1"}, tracker.started)
	assert.Equal(t, []string{"worker-1"}, tracker.stopped)
	assert.Equal(t, []error{nil, nil}, tracker.ctxErrs)
}

func TestStatus(t *testing.T) {
	tracker := &fakeTracker{status: tracking.Status{Active: true, ActiveUserID: "worker-1", QueueDepth: 3}}
	srv := newTestServer(t, tracker)

	w := do(t, srv, http.MethodGet, "/api/v1/tracking/status", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "worker-1", body["active_user_id"])
	assert.EqualValues(t, 3, body["queue_depth"])

	tracker.statusErr = errors.New("disk gone")
	w = do(t, srv, http.MethodGet, "/api/v1/tracking/status", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "server_error", decode(t, w)["error"])
}

func TestCurrentLocationUnavailable(t *testing.T) {
	srv := newTestServer(t, &fakeTracker{})

	w := do(t, srv, http.MethodGet, "/api/v1/location/current", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "location_unavailable", decode(t, w)["error"])
}

func TestQueueRoutes(t *testing.T) {
	tracker := &fakeTracker{
		queued: []tracking.QueuedSample{{
			ID:             "q-1",
			LocationSample: storage.LocationSample{UserID: "worker-1", Latitude: 1, Longitude: 2},
			RecordedAt:     time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		}},
		drain: tracking.DrainResult{Attempted: 1, Synced: 1},
	}
	srv := newTestServer(t, tracker)

	w := do(t, srv, http.MethodGet, "/api/v1/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["count"])

	w = do(t, srv, http.MethodPost, "/api/v1/queue/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.EqualValues(t, 1, body["attempted"])
	assert.EqualValues(t, 1, body["synced"])
	assert.EqualValues(t, 0, body["remaining"])
}

func TestListSessions(t *testing.T) {
	started := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	tracker := &fakeTracker{sessions: []storage.WorkSession{{
		ID:        "s-1",
		UserID:    "worker-1",
		StartedAt: started,
		Status:    storage.SessionActive,
	}}}
	srv := newTestServer(t, tracker)

	w := do(t, srv, http.MethodGet, "/api/v1/sessions?user_id=worker-1&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
	assert.Equal(t, []int{5}, tracker.sessionReq)

	w = do(t, srv, http.MethodGet, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodGet, "/api/v1/sessions?user_id=worker-1&limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tracker.sessionsErr = errors.New("redis down")
	w = do(t, srv, http.MethodGet, "/api/v1/sessions?user_id=worker-1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
