package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/fieldtrack/internal/location"
	"github.com/goodtune/fieldtrack/internal/metrics"
	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultTaskName is the background task capture is bound to.
	DefaultTaskName = "background-location-task"

	// DefaultSessionLimit is the page size for recent sessions.
	DefaultSessionLimit = 20
)

// Permission prompt outcomes reported to the UI.
const (
	MessageForegroundDenied   = "Foreground location permission denied"
	MessageBackgroundDenied   = "Background location permission denied"
	MessagePermissionsGranted = "All permissions granted"
)

// Result is the outcome of a controller operation.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PermissionResult is the outcome of a permission request.
type PermissionResult struct {
	Granted bool   `json:"granted"`
	Message string `json:"message"`
}

// Status describes the tracking state of the device.
type Status struct {
	Active       bool   `json:"active"`
	ActiveUserID string `json:"active_user_id,omitempty"`
	QueueDepth   int    `json:"queue_depth"`
}

// ControllerConfig holds controller configuration
type ControllerConfig struct {
	TaskName     string
	Update       location.UpdateOptions
	SessionLimit int
}

// DefaultUpdateOptions returns the background update configuration used
// while a worker is on shift.
func DefaultUpdateOptions() location.UpdateOptions {
	return location.UpdateOptions{
		Accuracy:         location.AccuracyHigh,
		TimeInterval:     10 * time.Second,
		DistanceInterval: 10,
		ShowIndicator:    true,
		Indicator: location.Indicator{
			Title: "Location Tracking Active",
			Body:  "Your location is being shared with your team.",
		},
	}
}

// Controller starts and stops tracking for a worker and owns the work
// session lifecycle.
type Controller struct {
	provider     location.Provider
	registration *RegistrationStore
	sink         storage.SampleSink
	sessions     storage.SessionStore
	queue        *Queue
	clock        Clock
	cfg          ControllerConfig
	logger       zerolog.Logger

	mu sync.Mutex // serializes Start and Stop
}

// NewController creates a controller.
func NewController(
	provider location.Provider,
	registration *RegistrationStore,
	store storage.Store,
	queue *Queue,
	clock Clock,
	cfg ControllerConfig,
	logger zerolog.Logger,
) *Controller {
	if cfg.TaskName == "" {
		cfg.TaskName = DefaultTaskName
	}
	if cfg.SessionLimit <= 0 {
		cfg.SessionLimit = DefaultSessionLimit
	}
	if cfg.Update.Accuracy == 0 {
		cfg.Update = DefaultUpdateOptions()
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &Controller{
		provider:     provider,
		registration: registration,
		sink:         store.Samples(),
		sessions:     store.Sessions(),
		queue:        queue,
		clock:        clock,
		cfg:          cfg,
		logger:       logger.With().Str("component", "controller").Logger(),
	}
}

// TaskName returns the background task name capture must be bound to.
func (c *Controller) TaskName() string {
	return c.cfg.TaskName
}

// RequestPermissions requests foreground then background access, stopping
// at the first denial.
func (c *Controller) RequestPermissions(ctx context.Context) PermissionResult {
	status, err := c.provider.RequestForegroundPermission(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Foreground permission request failed")
		return PermissionResult{Granted: false, Message: err.Error()}
	}
	if status != location.PermissionGranted {
		c.logger.Warn().Str("status", string(status)).Msg("Foreground permission not granted")
		return PermissionResult{Granted: false, Message: MessageForegroundDenied}
	}

	status, err = c.provider.RequestBackgroundPermission(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Background permission request failed")
		return PermissionResult{Granted: false, Message: err.Error()}
	}
	if status != location.PermissionGranted {
		c.logger.Warn().Str("status", string(status)).Msg("Background permission not granted")
		return PermissionResult{Granted: false, Message: MessageBackgroundDenied}
	}

	return PermissionResult{Granted: true, Message: MessagePermissionsGranted}
}

// Start begins tracking for userID. Starting while updates are already
// registered succeeds without side effects beyond recording the user.
func (c *Controller) Start(ctx context.Context, userID string) Result {
	if userID == "" {
		return failure(ErrUserIDRequired)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	logger := c.logger.With().Str("user_id", userID).Logger()

	if err := c.registration.Save(ctx, userID); err != nil {
		logger.Error().Err(err).Msg("Failed to persist registration")
		return failure(err)
	}

	started, err := c.provider.HasStartedUpdates(ctx, c.cfg.TaskName)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read registration state")
		return failure(fmt.Errorf("%w: %v", ErrRegistration, err))
	}
	if started {
		logger.Info().Msg("Tracking already active")
		return Result{Success: true}
	}

	if err := c.provider.StartUpdates(ctx, c.cfg.TaskName, c.cfg.Update); err != nil {
		logger.Error().Err(err).Msg("Failed to start location updates")
		if errors.Is(err, location.ErrPermissionNotGranted) {
			return failure(fmt.Errorf("%w: %v", ErrPermissionDenied, err))
		}
		return failure(fmt.Errorf("%w: %v", ErrRegistration, err))
	}
	metrics.TrackingActive.Set(1)

	session, err := c.sessions.CreateActive(ctx, userID, c.clock.Now())
	switch {
	case errors.Is(err, storage.ErrActiveSessionExists):
		metrics.SessionTransitionsTotal.WithLabelValues("adopted").Inc()
		if session != nil {
			logger = logger.With().Str("session_id", session.ID).Logger()
		}
		logger.Info().Msg("Resuming existing active session")
	case err != nil:
		logger.Error().Err(err).Msg("Failed to create work session")
		c.rollbackStart(ctx, logger)
		return failure(fmt.Errorf("%w: create work session: %v", ErrRemoteWrite, err))
	default:
		metrics.SessionTransitionsTotal.WithLabelValues("created").Inc()
		logger.Info().Str("session_id", session.ID).Msg("Tracking started")
	}

	return Result{Success: true}
}

// rollbackStart undoes a start whose work session could not be recorded, so
// a retry goes through the full start path again.
func (c *Controller) rollbackStart(ctx context.Context, logger zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)

	if err := c.provider.StopUpdates(ctx, c.cfg.TaskName); err != nil {
		logger.Error().Err(err).Msg("Failed to stop location updates after failed start")
	} else {
		metrics.TrackingActive.Set(0)
	}
	if err := c.registration.Clear(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to clear registration after failed start")
	}
}

// Stop ends tracking for userID: updates are unregistered, the registration
// is cleared, the active session is completed, the worker is marked offline
// and the queue is drained once.
func (c *Controller) Stop(ctx context.Context, userID string) Result {
	if userID == "" {
		return failure(ErrUserIDRequired)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	logger := c.logger.With().Str("user_id", userID).Logger()

	started, err := c.provider.HasStartedUpdates(ctx, c.cfg.TaskName)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read registration state")
		return failure(fmt.Errorf("%w: %v", ErrRegistration, err))
	}
	if started {
		if err := c.provider.StopUpdates(ctx, c.cfg.TaskName); err != nil {
			logger.Error().Err(err).Msg("Failed to stop location updates")
			return failure(fmt.Errorf("%w: %v", ErrRegistration, err))
		}
		metrics.TrackingActive.Set(0)
	}

	if err := c.registration.Clear(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to clear registration")
		return failure(err)
	}

	session, err := c.sessions.FindMostRecentActive(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		logger.Debug().Msg("No active session to complete")
	case err != nil:
		logger.Error().Err(err).Msg("Failed to look up active session")
		return failure(fmt.Errorf("%w: find active session: %v", ErrRemoteWrite, err))
	default:
		if err := c.sessions.Complete(ctx, session.ID, c.clock.Now()); err != nil {
			logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to complete session")
			return failure(fmt.Errorf("%w: complete session: %v", ErrRemoteWrite, err))
		}
		metrics.SessionTransitionsTotal.WithLabelValues("completed").Inc()
		logger.Info().Str("session_id", session.ID).Msg("Work session completed")
	}

	if err := c.sink.SetOnline(ctx, userID, false); err != nil {
		logger.Error().Err(err).Msg("Failed to mark worker offline")
		return failure(fmt.Errorf("%w: update online flag: %v", ErrRemoteWrite, err))
	}

	c.queue.Drain(ctx, c.sink)

	logger.Info().Msg("Tracking stopped")
	return Result{Success: true}
}

// CurrentLocation takes a one-shot high accuracy fix. It returns nil when
// no fix could be taken.
func (c *Controller) CurrentLocation(ctx context.Context) *location.Coords {
	fix, err := c.provider.CurrentPosition(ctx, location.AccuracyHigh)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to get current location")
		return nil
	}
	if fix == nil {
		return nil
	}
	return &fix.Coords
}

// IsActive reports whether background updates are registered.
func (c *Controller) IsActive(ctx context.Context) bool {
	started, err := c.provider.HasStartedUpdates(ctx, c.cfg.TaskName)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read registration state")
		return false
	}
	return started
}

// Status reports registration, the active user and queue depth.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	status := Status{Active: c.IsActive(ctx)}

	reg, err := c.registration.Load(ctx)
	if err != nil {
		return status, err
	}
	status.ActiveUserID = reg.ActiveUserID

	depth, err := c.queue.Len(ctx)
	if err != nil {
		return status, err
	}
	status.QueueDepth = depth
	return status, nil
}

// QueuedSamples returns the samples waiting for delivery.
func (c *Controller) QueuedSamples(ctx context.Context) ([]QueuedSample, error) {
	return c.queue.Entries(ctx)
}

// SyncOffline drains the local queue once.
func (c *Controller) SyncOffline(ctx context.Context) DrainResult {
	return c.queue.Drain(ctx, c.sink)
}

// RecentSessions lists the user's sessions, newest first. A non-positive
// limit uses the configured default.
func (c *Controller) RecentSessions(ctx context.Context, userID string, limit int) ([]storage.WorkSession, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = c.cfg.SessionLimit
	}

	sessions, err := c.sessions.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}
