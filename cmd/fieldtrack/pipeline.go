package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goodtune/fieldtrack/internal/config"
	"github.com/goodtune/fieldtrack/internal/database"
	"github.com/goodtune/fieldtrack/internal/location"
	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/goodtune/fieldtrack/internal/storage/badger"
	"github.com/goodtune/fieldtrack/internal/storage/bolt"
	"github.com/goodtune/fieldtrack/internal/storage/redis"
	"github.com/goodtune/fieldtrack/internal/tracking"
	"github.com/rs/zerolog"
)

// pipeline is the wired reporting pipeline shared by the agent and the
// maintenance commands.
type pipeline struct {
	local        storage.KeyValueStore
	remote       storage.Store
	device       *location.Device
	queue        *tracking.Queue
	registration *tracking.RegistrationStore
	capture      *tracking.CaptureTask
	controller   *tracking.Controller
}

func buildPipeline(cfg *config.Config, logger zerolog.Logger) (*pipeline, error) {
	local, err := openLocal(cfg.Local, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open local storage: %w", err)
	}

	remote, err := openRemote(cfg.Remote)
	if err != nil {
		_ = local.Close()
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}

	source, err := buildSource(cfg.Location)
	if err != nil {
		_ = remote.Close()
		_ = local.Close()
		return nil, fmt.Errorf("failed to build location source: %w", err)
	}

	update, err := updateOptions(cfg.Tracking)
	if err != nil {
		_ = remote.Close()
		_ = local.Close()
		return nil, err
	}

	device := location.NewDevice(source, location.DeviceConfig{
		Foreground:   location.PermissionStatus(cfg.Location.ForegroundPermission),
		Background:   location.PermissionStatus(cfg.Location.BackgroundPermission),
		PollInterval: parseDuration(cfg.Location.PollInterval, location.DefaultPollInterval),
	}, logger)

	clock := tracking.RealClock{}
	queue := tracking.NewQueue(local, tracking.QueueConfig{
		Key:        cfg.Tracking.QueueKey,
		DrainRate:  cfg.Tracking.DrainRate,
		DrainBurst: cfg.Tracking.DrainBurst,
	}, logger)
	registration := tracking.NewRegistrationStore(local, cfg.Tracking.RegistrationKey)

	capture := tracking.NewCaptureTask(registration, remote.Samples(), queue, clock, logger)
	device.DefineTask(cfg.Tracking.TaskName, capture.Handle)

	controller := tracking.NewController(device, registration, remote, queue, clock, tracking.ControllerConfig{
		TaskName:     cfg.Tracking.TaskName,
		Update:       update,
		SessionLimit: cfg.Tracking.SessionLimit,
	}, logger)

	return &pipeline{
		local:        local,
		remote:       remote,
		device:       device,
		queue:        queue,
		registration: registration,
		capture:      capture,
		controller:   controller,
	}, nil
}

// Close stops location updates and closes both stores.
func (p *pipeline) Close(logger zerolog.Logger) {
	if err := p.device.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop location device")
	}
	if err := p.remote.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close remote store")
	}
	if err := p.local.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close local storage")
	}
}

func openLocal(cfg config.LocalConfig, logger zerolog.Logger) (storage.KeyValueStore, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "badger":
		badgerCfg := badger.DefaultConfig()
		badgerCfg.Path = cfg.Path
		badgerCfg.SyncWrites = cfg.BadgerSyncWrites
		badgerCfg.GCInterval = parseDuration(cfg.BadgerGCInterval, badgerCfg.GCInterval)
		return badger.Open(badgerCfg, logger)
	default:
		return nil, fmt.Errorf("unsupported local storage type: %s", cfg.Type)
	}
}

func openRemote(cfg config.RemoteConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "sqlite":
		return database.New(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported remote store type: %s", cfg.Type)
	}
}

func buildSource(cfg config.LocationConfig) (location.FixSource, error) {
	switch cfg.Source {
	case "", "static":
		return &location.StaticSource{Coords: location.Coords{
			Latitude:  cfg.StaticLatitude,
			Longitude: cfg.StaticLongitude,
		}}, nil
	case "replay":
		return location.NewReplaySource(cfg.ReplayFile, cfg.ReplayLoop)
	default:
		return nil, fmt.Errorf("unsupported location source: %s", cfg.Source)
	}
}

func updateOptions(cfg config.TrackingConfig) (location.UpdateOptions, error) {
	defaults := tracking.DefaultUpdateOptions()

	accuracy, err := location.ParseAccuracy(cfg.Accuracy)
	if err != nil {
		return location.UpdateOptions{}, fmt.Errorf("invalid tracking accuracy: %w", err)
	}

	return location.UpdateOptions{
		Accuracy:         accuracy,
		TimeInterval:     parseDuration(cfg.TimeInterval, defaults.TimeInterval),
		DistanceInterval: cfg.DistanceInterval,
		ShowIndicator:    cfg.ShowIndicator,
		Indicator: location.Indicator{
			Title: cfg.IndicatorTitle,
			Body:  cfg.IndicatorBody,
		},
	}, nil
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// quietLogger is used by one-shot commands whose output is for humans.
func quietLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
