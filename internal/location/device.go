package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/fieldtrack/internal/geo"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often a task runner reads the source.
const DefaultPollInterval = time.Second

// DeviceConfig holds the answers the device gives to permission prompts and
// the source polling rate.
type DeviceConfig struct {
	Foreground   PermissionStatus
	Background   PermissionStatus
	PollInterval time.Duration
}

// Device is a software Provider backed by a FixSource. Each started task
// gets its own runner goroutine; deliveries to a task handler happen inside
// that goroutine, so one task never sees concurrent deliveries.
type Device struct {
	source FixSource
	cfg    DeviceConfig
	logger zerolog.Logger

	mu         sync.Mutex
	foreground PermissionStatus
	background PermissionStatus
	tasks      map[string]TaskFunc
	runners    map[string]*runner
}

// NewDevice creates a device reading positions from source.
func NewDevice(source FixSource, cfg DeviceConfig, logger zerolog.Logger) *Device {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Foreground == "" {
		cfg.Foreground = PermissionGranted
	}
	if cfg.Background == "" {
		cfg.Background = PermissionGranted
	}

	return &Device{
		source:     source,
		cfg:        cfg,
		logger:     logger.With().Str("component", "location-device").Logger(),
		foreground: PermissionUndetermined,
		background: PermissionUndetermined,
		tasks:      make(map[string]TaskFunc),
		runners:    make(map[string]*runner),
	}
}

// DefineTask binds a handler to a task name. Redefining a name replaces the
// handler for runners started afterwards.
func (d *Device) DefineTask(name string, fn TaskFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks[name] = fn
}

// RequestForegroundPermission prompts for while-in-use access.
func (d *Device) RequestForegroundPermission(ctx context.Context) (PermissionStatus, error) {
	if err := ctx.Err(); err != nil {
		return PermissionUndetermined, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.foreground = d.cfg.Foreground

	d.logger.Debug().Str("status", string(d.foreground)).Msg("Foreground permission requested")
	return d.foreground, nil
}

// RequestBackgroundPermission prompts for always access. It is denied
// without prompting while foreground access is missing.
func (d *Device) RequestBackgroundPermission(ctx context.Context) (PermissionStatus, error) {
	if err := ctx.Err(); err != nil {
		return PermissionUndetermined, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.foreground != PermissionGranted {
		return PermissionDenied, nil
	}
	d.background = d.cfg.Background

	d.logger.Debug().Str("status", string(d.background)).Msg("Background permission requested")
	return d.background, nil
}

// CurrentPosition takes a single reading.
func (d *Device) CurrentPosition(ctx context.Context, accuracy Accuracy) (*Fix, error) {
	d.mu.Lock()
	granted := d.foreground == PermissionGranted
	d.mu.Unlock()

	if !granted {
		return nil, fmt.Errorf("current position: %w", ErrPermissionNotGranted)
	}

	fix, err := d.source.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("current position (%s): %w", accuracy, err)
	}
	return &fix, nil
}

// StartUpdates starts delivering updates to the named task. Starting a task
// that is already running restarts it with the new options.
func (d *Device) StartUpdates(ctx context.Context, taskName string, opts UpdateOptions) error {
	d.mu.Lock()
	if d.foreground != PermissionGranted || d.background != PermissionGranted {
		d.mu.Unlock()
		return fmt.Errorf("start updates for %s: %w", taskName, ErrPermissionNotGranted)
	}
	fn, ok := d.tasks[taskName]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("start updates for %s: %w", taskName, ErrTaskNotDefined)
	}
	previous := d.runners[taskName]
	delete(d.runners, taskName)
	d.mu.Unlock()

	if previous != nil {
		previous.stop()
	}

	r := &runner{
		name:   taskName,
		fn:     fn,
		opts:   opts,
		source: d.source,
		poll:   d.cfg.PollInterval,
		logger: d.logger.With().Str("task", taskName).Logger(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	d.mu.Lock()
	raced := d.runners[taskName]
	d.runners[taskName] = r
	d.mu.Unlock()

	if raced != nil {
		raced.stop()
	}

	// Deliveries outlive the request that started them.
	go r.run(context.WithoutCancel(ctx))

	d.logger.Info().
		Str("task", taskName).
		Str("accuracy", opts.Accuracy.String()).
		Dur("time_interval", opts.TimeInterval).
		Float64("distance_interval", opts.DistanceInterval).
		Bool("indicator", opts.ShowIndicator).
		Str("indicator_title", opts.Indicator.Title).
		Msg("Location updates started")

	return nil
}

// HasStartedUpdates reports whether the named task is running.
func (d *Device) HasStartedUpdates(ctx context.Context, taskName string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.runners[taskName]
	return ok, nil
}

// StopUpdates stops the named task and waits for an in-flight delivery to
// finish. Stopping a task that is not running is a no-op.
func (d *Device) StopUpdates(ctx context.Context, taskName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	r := d.runners[taskName]
	delete(d.runners, taskName)
	d.mu.Unlock()

	if r == nil {
		return nil
	}
	r.stop()

	d.logger.Info().Str("task", taskName).Msg("Location updates stopped")
	return nil
}

// Close stops every running task.
func (d *Device) Close() error {
	d.mu.Lock()
	runners := d.runners
	d.runners = make(map[string]*runner)
	d.mu.Unlock()

	for _, r := range runners {
		r.stop()
	}
	return nil
}

type runner struct {
	name   string
	fn     TaskFunc
	opts   UpdateOptions
	source FixSource
	poll   time.Duration
	logger zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func (r *runner) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (r *runner) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	var (
		pending   []Fix
		delivered *Fix
		exhausted bool
	)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
		}

		if exhausted {
			continue
		}

		fix, err := r.source.Next(ctx)
		if errors.Is(err, ErrSourceExhausted) {
			r.logger.Info().Msg("Location source exhausted")
			exhausted = true
			continue
		}
		if err != nil {
			r.fn(ctx, TaskEvent{Err: err})
			continue
		}

		pending = append(pending, fix)
		if !r.due(delivered, fix) {
			continue
		}

		r.fn(ctx, TaskEvent{Locations: pending})
		delivered = &fix
		pending = nil
	}
}

// due reports whether fix should trigger a delivery given the last
// delivered fix. Either threshold being met is enough.
func (r *runner) due(last *Fix, fix Fix) bool {
	if last == nil {
		return true
	}
	if r.opts.TimeInterval <= 0 && r.opts.DistanceInterval <= 0 {
		return true
	}
	if r.opts.TimeInterval > 0 && fix.Timestamp.Sub(last.Timestamp) >= r.opts.TimeInterval {
		return true
	}
	if r.opts.DistanceInterval > 0 {
		moved := geo.DistanceMeters(
			geo.Point{Lat: last.Coords.Latitude, Lng: last.Coords.Longitude},
			geo.Point{Lat: fix.Coords.Latitude, Lng: fix.Coords.Longitude},
		)
		if moved >= r.opts.DistanceInterval {
			return true
		}
	}
	return false
}

var _ Provider = (*Device)(nil)
