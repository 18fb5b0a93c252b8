package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/fieldtrack/internal/metrics"
	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultQueueKey is the storage key holding the serialized queue.
const DefaultQueueKey = "location_queue"

// QueuedSample is a sample waiting for remote delivery.
type QueuedSample struct {
	ID string `json:"id"`
	storage.LocationSample
	RecordedAt time.Time `json:"recorded_at"` // capture instant, sent as the sample timestamp
	Synced     bool      `json:"synced"`
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Remaining int `json:"remaining"`
}

// QueueConfig holds queue configuration
type QueueConfig struct {
	Key        string
	DrainRate  float64 // inserts per second, 0 = unlimited
	DrainBurst int
}

// Queue is the durable local backlog of samples that failed delivery. The
// whole list lives under one key and every mutation rewrites it while
// holding mu.
type Queue struct {
	kv      storage.KeyValueStore
	key     string
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu      sync.Mutex // guards read-modify-write of the stored list
	drainMu sync.Mutex // one drain pass at a time
}

// NewQueue creates a queue stored in kv.
func NewQueue(kv storage.KeyValueStore, cfg QueueConfig, logger zerolog.Logger) *Queue {
	if cfg.Key == "" {
		cfg.Key = DefaultQueueKey
	}

	q := &Queue{
		kv:     kv,
		key:    cfg.Key,
		logger: logger.With().Str("component", "queue").Logger(),
	}
	if cfg.DrainRate > 0 {
		burst := cfg.DrainBurst
		if burst < 1 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(cfg.DrainRate), burst)
	}
	return q
}

// Append adds a sample to the end of the queue.
func (q *Queue) Append(ctx context.Context, sample storage.LocationSample) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	assignIDs(entries)

	entries = append(entries, QueuedSample{
		ID:             uuid.NewString(),
		LocationSample: sample,
		RecordedAt:     sample.Timestamp,
	})

	if err := q.store(ctx, entries); err != nil {
		return err
	}

	q.logger.Debug().
		Str("user_id", sample.UserID).
		Time("recorded_at", sample.Timestamp).
		Int("depth", len(entries)).
		Msg("Sample queued for later delivery")
	return nil
}

// Entries returns a copy of the stored queue in insertion order.
func (q *Queue) Entries(ctx context.Context) ([]QueuedSample, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of stored entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.Entries(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Drain sends every unsynced entry to sink, in insertion order, and
// rewrites the queue to hold only the entries that are still unsynced.
// One failed insert never stops the others. Entries appended while the
// drain runs are kept.
func (q *Queue) Drain(ctx context.Context, sink storage.SampleSink) DrainResult {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	metrics.DrainRunsTotal.Inc()

	q.mu.Lock()
	snapshot, err := q.load(ctx)
	if err == nil && assignIDs(snapshot) {
		err = q.store(ctx, snapshot)
	}
	q.mu.Unlock()
	if err != nil {
		q.logger.Error().Err(err).Msg("Failed to read queue for drain")
		return DrainResult{}
	}
	if len(snapshot) == 0 {
		return DrainResult{}
	}

	pending := make([]QueuedSample, 0, len(snapshot))
	for _, entry := range snapshot {
		if !entry.Synced {
			pending = append(pending, entry)
		}
	}

	// Confirmed results are recorded even if the caller gives up mid-pass.
	persistCtx := context.WithoutCancel(ctx)

	if len(pending) == 0 {
		// Synced leftovers from an interrupted pass.
		remaining, err := q.compact(persistCtx, nil)
		if err != nil {
			q.logger.Error().Err(err).Msg("Failed to compact queue")
		}
		return DrainResult{Remaining: remaining}
	}

	confirmed := make(map[string]bool, len(pending))
	result := DrainResult{}
	for _, entry := range pending {
		if q.limiter != nil {
			if err := q.limiter.Wait(ctx); err != nil {
				q.logger.Warn().Err(err).Msg("Drain interrupted")
				break
			}
		}

		result.Attempted++
		sample := entry.LocationSample
		sample.Timestamp = entry.RecordedAt
		sample.IsOnline = true

		start := time.Now()
		err := sink.InsertSample(ctx, sample)
		metrics.RemoteInsertDuration.WithLabelValues("drain").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.RemoteInsertErrors.WithLabelValues("drain").Inc()
			q.logger.Warn().
				Err(err).
				Str("entry_id", entry.ID).
				Time("recorded_at", entry.RecordedAt).
				Msg("Queued sample still undeliverable")
			continue
		}
		confirmed[entry.ID] = true
	}

	remaining, err := q.compact(persistCtx, confirmed)
	if err != nil {
		q.logger.Error().Err(err).Msg("Failed to rewrite queue after drain")
		remaining = len(snapshot) - len(confirmed)
	}

	result.Synced = len(confirmed)
	result.Remaining = remaining
	metrics.DrainedSamplesTotal.Add(float64(result.Synced))

	q.logger.Info().
		Int("attempted", result.Attempted).
		Int("synced", result.Synced).
		Int("remaining", result.Remaining).
		Msg("Queue drain complete")

	return result
}

// compact marks confirmed IDs as synced against the current stored list,
// persists it, then persists it again without synced entries.
func (q *Queue) compact(ctx context.Context, confirmed map[string]bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.load(ctx)
	if err != nil {
		return 0, err
	}

	for i := range current {
		if confirmed[current[i].ID] {
			current[i].Synced = true
		}
	}
	if len(confirmed) > 0 {
		if err := q.store(ctx, current); err != nil {
			return 0, err
		}
	}

	unsynced := make([]QueuedSample, 0, len(current))
	for _, entry := range current {
		if !entry.Synced {
			unsynced = append(unsynced, entry)
		}
	}
	if err := q.store(ctx, unsynced); err != nil {
		return 0, err
	}
	return len(unsynced), nil
}

// load reads the stored list. Callers hold mu.
func (q *Queue) load(ctx context.Context) ([]QueuedSample, error) {
	raw, err := q.kv.Get(ctx, q.key)
	if errors.Is(err, storage.ErrNotFound) {
		return []QueuedSample{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read queue: %v", ErrLocalStorage, err)
	}
	if raw == "" {
		return []QueuedSample{}, nil
	}

	var entries []QueuedSample
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("%w: decode queue: %v", ErrLocalStorage, err)
	}
	return entries, nil
}

// assignIDs gives an identity to entries written without one.
func assignIDs(entries []QueuedSample) bool {
	changed := false
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
			changed = true
		}
	}
	return changed
}

// store writes the whole list. Callers hold mu.
func (q *Queue) store(ctx context.Context, entries []QueuedSample) error {
	if entries == nil {
		entries = []QueuedSample{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: encode queue: %v", ErrLocalStorage, err)
	}
	if err := q.kv.Set(ctx, q.key, string(data)); err != nil {
		return fmt.Errorf("%w: write queue: %v", ErrLocalStorage, err)
	}
	metrics.QueueDepth.Set(float64(len(entries)))
	return nil
}
