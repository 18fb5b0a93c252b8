package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/fieldtrack/internal/config"
	"github.com/goodtune/fieldtrack/internal/control"
	"github.com/goodtune/fieldtrack/internal/metrics"
	"github.com/goodtune/fieldtrack/internal/systemd"
	"github.com/goodtune/fieldtrack/internal/tracking"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the FieldTrack agent",
	Long: `Run the FieldTrack agent: background location capture, offline queue
sync, the local control API and the metrics endpoint.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting FieldTrack agent")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close(logger)

	logger.Info().
		Str("local", cfg.Local.Type).
		Str("remote", cfg.Remote.Type).
		Str("source", cfg.Location.Source).
		Msg("Pipeline initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resumeTracking(ctx, p, cfg.Agent.UserID, logger)

	// Initialize Control Server
	var controlServer *control.Server
	if cfg.Control.Enabled {
		controlAddr := fmt.Sprintf("%s:%d", cfg.Control.BindAddress, cfg.Control.Port)
		controlServer = control.NewServer(control.Config{ListenAddr: controlAddr}, p.controller, logger)
		if sdListeners.Activated && sdListeners.Control != nil {
			controlServer.SetListener(sdListeners.Control)
		}
		if err := controlServer.Start(); err != nil {
			return fmt.Errorf("failed to start control server: %w", err)
		}
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// SIGHUP forces an immediate offline queue sync
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runSyncLoop(gctx, p.controller, parseDuration(cfg.Agent.SyncInterval, time.Minute), hup, logger)
	})
	g.Go(func() error {
		return systemd.RunWatchdog(gctx)
	})

	logger.Info().Msg("FieldTrack startup complete")

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error().Err(runErr).Msg("Agent component failed")
	} else {
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if controlServer != nil {
		if err := controlServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping control server")
		}
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("FieldTrack agent stopped")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// resumeTracking restarts updates at boot for the configured user, or for the
// user left registered when the agent last exited.
func resumeTracking(ctx context.Context, p *pipeline, configured string, logger zerolog.Logger) {
	userID := configured
	if userID == "" {
		registered, err := p.registration.ActiveUser(ctx)
		switch {
		case errors.Is(err, tracking.ErrMissingIdentity):
			return
		case err != nil:
			logger.Warn().Err(err).Msg("Failed to read tracking registration")
			return
		}
		userID = registered
	}

	logger = logger.With().Str("user_id", userID).Logger()

	if perms := p.controller.RequestPermissions(ctx); !perms.Granted {
		logger.Warn().Str("reason", perms.Message).Msg("Cannot resume tracking")
		return
	}

	if result := p.controller.Start(ctx, userID); !result.Success {
		logger.Error().Str("error", result.Error).Msg("Failed to resume tracking")
		return
	}

	if err := systemd.NotifyStatus("tracking " + userID); err != nil {
		logger.Debug().Err(err).Msg("Failed to send systemd status")
	}
	logger.Info().Msg("Tracking resumed")
}

// runSyncLoop drains the offline queue on an interval and whenever trigger
// fires, until ctx is done. A non-positive interval disables the timer.
func runSyncLoop(ctx context.Context, ctrl *tracking.Controller, interval time.Duration, trigger <-chan os.Signal, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "sync").Logger()

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-trigger:
			logger.Info().Msg("SIGHUP received, syncing offline queue")
		case <-tick:
		}

		result := ctrl.SyncOffline(ctx)
		if result.Attempted > 0 {
			logger.Info().
				Int("attempted", result.Attempted).
				Int("synced", result.Synced).
				Int("remaining", result.Remaining).
				Msg("Offline queue synced")
		}
	}
}
