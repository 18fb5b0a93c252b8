package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goodtune/fieldtrack/internal/location"
	"github.com/goodtune/fieldtrack/internal/metrics"
	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/rs/zerolog"
)

// CaptureTask turns location task deliveries into remote samples, queueing
// them locally when the remote write fails.
type CaptureTask struct {
	registration *RegistrationStore
	sink         storage.SampleSink
	queue        *Queue
	clock        Clock
	validate     *validator.Validate
	logger       zerolog.Logger
}

// NewCaptureTask creates a capture task.
func NewCaptureTask(registration *RegistrationStore, sink storage.SampleSink, queue *Queue, clock Clock, logger zerolog.Logger) *CaptureTask {
	if clock == nil {
		clock = RealClock{}
	}
	return &CaptureTask{
		registration: registration,
		sink:         sink,
		queue:        queue,
		clock:        clock,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger.With().Str("component", "capture").Logger(),
	}
}

// Handle processes one delivery. It never reports failure to the caller:
// a sample that cannot be sent is queued, and one that cannot be queued is
// logged and dropped.
func (t *CaptureTask) Handle(ctx context.Context, event location.TaskEvent) {
	outcome := t.handle(ctx, event)
	metrics.CaptureEventsTotal.WithLabelValues(outcome).Inc()
}

func (t *CaptureTask) handle(ctx context.Context, event location.TaskEvent) string {
	if event.Err != nil {
		t.logger.Warn().Err(event.Err).Msg("Location task error")
		return "error"
	}
	if len(event.Locations) == 0 {
		return "empty"
	}

	// One sample per delivery, however many fixes were batched.
	fix := event.Locations[0]

	userID, err := t.registration.ActiveUser(ctx)
	if err != nil {
		if errors.Is(err, ErrMissingIdentity) {
			t.logger.Debug().Msg("No registered user, discarding fix")
		} else {
			t.logger.Error().Err(err).Msg("Failed to read registration, discarding fix")
		}
		return "no_identity"
	}

	sample := storage.LocationSample{
		UserID:    userID,
		Latitude:  fix.Coords.Latitude,
		Longitude: fix.Coords.Longitude,
		Speed:     fix.Coords.Speed,
		Accuracy:  fix.Coords.Accuracy,
		Timestamp: t.clock.Now(),
		IsOnline:  true,
	}
	if err := t.validate.Struct(sample); err != nil {
		t.logger.Warn().Err(err).
			Float64("latitude", sample.Latitude).
			Float64("longitude", sample.Longitude).
			Msg("Discarding invalid fix")
		return "invalid"
	}

	start := time.Now()
	err = t.sink.InsertSample(ctx, sample)
	metrics.RemoteInsertDuration.WithLabelValues("live").Observe(time.Since(start).Seconds())
	if err == nil {
		t.logger.Debug().
			Str("user_id", userID).
			Float64("latitude", sample.Latitude).
			Float64("longitude", sample.Longitude).
			Msg("Sample delivered")

		// Connectivity is back, clear any backlog.
		t.queue.Drain(ctx, t.sink)
		return "sent"
	}

	metrics.RemoteInsertErrors.WithLabelValues("live").Inc()
	t.logger.Warn().Err(err).Str("user_id", userID).Msg("Remote insert failed, queueing sample")

	if err := t.queue.Append(ctx, sample); err != nil {
		metrics.QueueAppendErrors.Inc()
		t.logger.Error().Err(err).
			Str("user_id", userID).
			Time("timestamp", sample.Timestamp).
			Msg("Failed to queue sample, sample dropped")
		return "dropped"
	}
	return "queued"
}
