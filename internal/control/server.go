// Package control serves the local HTTP API the UI uses to drive tracking.
package control

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goodtune/fieldtrack/internal/location"
	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/goodtune/fieldtrack/internal/tracking"
	"github.com/rs/zerolog"
)

// Tracker is the tracking surface exposed over HTTP.
type Tracker interface {
	RequestPermissions(ctx context.Context) tracking.PermissionResult
	Start(ctx context.Context, userID string) tracking.Result
	Stop(ctx context.Context, userID string) tracking.Result
	CurrentLocation(ctx context.Context) *location.Coords
	Status(ctx context.Context) (tracking.Status, error)
	QueuedSamples(ctx context.Context) ([]tracking.QueuedSample, error)
	SyncOffline(ctx context.Context) tracking.DrainResult
	RecentSessions(ctx context.Context, userID string, limit int) ([]storage.WorkSession, error)
}

// Config holds the control server configuration.
type Config struct {
	ListenAddr string
}

// Server is the control API HTTP server.
type Server struct {
	config   Config
	server   *http.Server
	router   *gin.Engine
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
	logger   zerolog.Logger
}

// NewServer creates a new control server.
func NewServer(cfg Config, tracker Tracker, logger zerolog.Logger) *Server {
	if logger.GetLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger = logger.With().Str("component", "control").Logger()

	// Create Gin router without default middleware (we use custom JSON logging)
	router := gin.New()
	router.Use(gin.Recovery())

	SetupRoutes(router, &Deps{Tracker: tracker, Logger: logger})

	return &Server{
		config: cfg,
		router: router,
		server: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the control server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting control server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated control listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Control server error")
		}
	}()
	return nil
}

// Stop gracefully stops the control server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info().Msg("Stopping control server")
	return s.server.Shutdown(ctx)
}

var _ Tracker = (*tracking.Controller)(nil)
