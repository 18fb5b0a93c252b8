package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Capture metrics
	CaptureEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldtrack_capture_events_total",
			Help: "Total location task deliveries handled, by outcome",
		},
		[]string{"outcome"}, // sent, queued, dropped, error, no_identity, invalid, empty
	)

	RemoteInsertDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldtrack_remote_insert_duration_seconds",
			Help:    "Remote sample insert duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"path"}, // live or drain
	)

	RemoteInsertErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldtrack_remote_insert_errors_total",
			Help: "Remote sample insert failures",
		},
		[]string{"path"},
	)

	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldtrack_queue_depth",
			Help: "Number of samples waiting in the local queue",
		},
	)

	QueueAppendErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldtrack_queue_append_errors_total",
			Help: "Samples lost because the local queue could not be written",
		},
	)

	DrainRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldtrack_drain_runs_total",
			Help: "Total queue drain passes",
		},
	)

	DrainedSamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldtrack_drained_samples_total",
			Help: "Queued samples delivered by drain passes",
		},
	)

	// Session metrics
	TrackingActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldtrack_tracking_active",
			Help: "1 while background location updates are registered",
		},
	)

	SessionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldtrack_session_transitions_total",
			Help: "Work session lifecycle transitions",
		},
		[]string{"transition"}, // created, adopted, completed
	)

	// Control API metrics
	ControlRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldtrack_control_requests_total",
			Help: "Total control API requests",
		},
		[]string{"route", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		CaptureEventsTotal,
		RemoteInsertDuration,
		RemoteInsertErrors,
		QueueDepth,
		QueueAppendErrors,
		DrainRunsTotal,
		DrainedSamplesTotal,
		TrackingActive,
		SessionTransitionsTotal,
		ControlRequestsTotal,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
