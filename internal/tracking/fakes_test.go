package tracking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/fieldtrack/internal/location"
	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/google/uuid"
)

var errNetwork = errors.New("network unreachable")

// memKV is an in-memory storage.KeyValueStore with failure injection.
type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	failGet bool
	failSet bool
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
}

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", errors.New("disk read error")
	}
	v, ok := m.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("disk full")
	}
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	return nil
}

func (m *memKV) Close() error { return nil }

func (m *memKV) setFailSet(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSet = fail
}

// fakeSink records inserts. fail decides per sample whether the insert errors.
type fakeSink struct {
	mu        sync.Mutex
	inserts   []storage.LocationSample
	online    map[string]bool
	fail      func(storage.LocationSample) bool
	onInsert  func(storage.LocationSample)
	onlineErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{online: make(map[string]bool)}
}

func (s *fakeSink) InsertSample(ctx context.Context, sample storage.LocationSample) error {
	if s.onInsert != nil {
		s.onInsert(sample)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil && s.fail(sample) {
		return errNetwork
	}
	s.inserts = append(s.inserts, sample)
	return nil
}

func (s *fakeSink) SetOnline(ctx context.Context, userID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onlineErr != nil {
		return s.onlineErr
	}
	s.online[userID] = online
	return nil
}

func (s *fakeSink) setFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if failing {
		s.fail = func(storage.LocationSample) bool { return true }
	} else {
		s.fail = nil
	}
}

func (s *fakeSink) received() []storage.LocationSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.LocationSample(nil), s.inserts...)
}

// fakeSessions keeps sessions in memory and allows one active per user.
type fakeSessions struct {
	mu          sync.Mutex
	sessions    map[string]*storage.WorkSession
	createCalls int
	completed   []string
	findErr     error
	createFails int // number of CreateActive calls to fail before succeeding
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*storage.WorkSession)}
}

func (f *fakeSessions) CreateActive(ctx context.Context, userID string, startedAt time.Time) (*storage.WorkSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createFails > 0 {
		f.createFails--
		return nil, errNetwork
	}
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status == storage.SessionActive {
			existing := *s
			return &existing, storage.ErrActiveSessionExists
		}
	}
	s := &storage.WorkSession{ID: uuid.NewString(), UserID: userID, StartedAt: startedAt, Status: storage.SessionActive}
	f.sessions[s.ID] = s
	created := *s
	return &created, nil
}

func (f *fakeSessions) FindMostRecentActive(ctx context.Context, userID string) (*storage.WorkSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status == storage.SessionActive {
			found := *s
			return &found, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeSessions) Complete(ctx context.Context, id string, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.Status = storage.SessionCompleted
	s.EndedAt = &endedAt
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeSessions) ListRecent(ctx context.Context, userID string, limit int) ([]storage.WorkSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.WorkSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSessions) forUser(userID string) []storage.WorkSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.WorkSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out
}

type fakeStore struct {
	sink     *fakeSink
	sessions *fakeSessions
}

func (s *fakeStore) Close() error                   { return nil }
func (s *fakeStore) Samples() storage.SampleSink    { return s.sink }
func (s *fakeStore) Sessions() storage.SessionStore { return s.sessions }

// fakeProvider is a scripted location.Provider.
type fakeProvider struct {
	mu          sync.Mutex
	foreground  location.PermissionStatus
	background  location.PermissionStatus
	started     map[string]location.UpdateOptions
	startCalls  int
	stopCalls   int
	bgRequests  int
	startErr    error
	position    *location.Fix
	positionErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		foreground: location.PermissionGranted,
		background: location.PermissionGranted,
		started:    make(map[string]location.UpdateOptions),
	}
}

func (p *fakeProvider) RequestForegroundPermission(ctx context.Context) (location.PermissionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.foreground, nil
}

func (p *fakeProvider) RequestBackgroundPermission(ctx context.Context) (location.PermissionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bgRequests++
	return p.background, nil
}

func (p *fakeProvider) CurrentPosition(ctx context.Context, accuracy location.Accuracy) (*location.Fix, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.positionErr != nil {
		return nil, p.positionErr
	}
	return p.position, nil
}

func (p *fakeProvider) StartUpdates(ctx context.Context, taskName string, opts location.UpdateOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startCalls++
	if p.startErr != nil {
		return p.startErr
	}
	p.started[taskName] = opts
	return nil
}

func (p *fakeProvider) HasStartedUpdates(ctx context.Context, taskName string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.started[taskName]
	return ok, nil
}

func (p *fakeProvider) StopUpdates(ctx context.Context, taskName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopCalls++
	delete(p.started, taskName)
	return nil
}

func ptr(v float64) *float64 { return &v }

func fixEvent(lat, lng float64) location.TaskEvent {
	return location.TaskEvent{Locations: []location.Fix{{
		Coords:    location.Coords{Latitude: lat, Longitude: lng},
		Timestamp: time.Now(),
	}}}
}
