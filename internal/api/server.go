package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"clearpoint-monitor/internal/database"
	"clearpoint-monitor/internal/monitoring"
	"clearpoint-monitor/internal/scheduler"
	"clearpoint-monitor/internal/types"
)

// Store is the persistence the API needs
type Store interface {
	Health(ctx context.Context) error
	LookupDeviceToken(ctx context.Context, hash string) (*database.DeviceToken, error)
	CameraBelongsToGateway(ctx context.Context, cameraID, gatewayID string) (bool, error)
	UpsertCameraHealth(ctx context.Context, h types.CameraHealth) error
	UpsertGatewayHealth(ctx context.Context, h types.GatewayHealth) error
	ListAlerts(ctx context.Context, filter database.AlertFilter) ([]types.Alert, error)
	GetAlert(ctx context.Context, id string) (*types.Alert, error)
	FindOpenAlert(ctx context.Context, deviceID string, fault types.FaultType) (*types.Alert, error)
	SetAlertResolved(ctx context.Context, id string, resolved bool, at time.Time) error
	DeleteResolvedAlerts(ctx context.Context) (int64, error)
	UpdateSettings(ctx context.Context, s monitoring.Settings) error
}

// Monitor runs monitoring cycles on demand
type Monitor interface {
	RunCycle(ctx context.Context) (monitoring.CycleResult, error)
	LastResult() (monitoring.CycleResult, bool)
	Settings(ctx context.Context) monitoring.Settings
}

// SchedulerStatus reports the periodic scheduler state
type SchedulerStatus interface {
	Status() scheduler.Status
}

// Config holds API server configuration
type Config struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	ReadTimeout       int    `mapstructure:"read_timeout"`
	WriteTimeout      int    `mapstructure:"write_timeout"`
	IdleTimeout       int    `mapstructure:"idle_timeout"`
	JWTSecret         string `mapstructure:"jwt_secret"`
	DeviceTokenHeader string `mapstructure:"device_token_header"`
}

// DefaultConfig returns default API server configuration
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		ReadTimeout:       30,
		WriteTimeout:      30,
		IdleTimeout:       120,
		DeviceTokenHeader: DefaultDeviceTokenHeader,
	}
}

// Server represents the HTTP API server
type Server struct {
	config     Config
	logger     *logrus.Logger
	router     *mux.Router
	httpServer *http.Server

	store     Store
	monitor   Monitor
	scheduler SchedulerStatus
	hub       *AlertHub
	version   string
	clock     func() time.Time
}

// Option is a functional option for configuring the Server
type Option func(*Server)

// WithLogger sets the logger for the server
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithScheduler exposes scheduler state on the status endpoint
func WithScheduler(sched SchedulerStatus) Option {
	return func(s *Server) {
		s.scheduler = sched
	}
}

// WithAlertHub sets the hub used for the live feed
func WithAlertHub(hub *AlertHub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithVersion sets the version reported by the health endpoint
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// NewServer creates a new API server instance
func NewServer(config Config, store Store, monitor Monitor, opts ...Option) *Server {
	if config.DeviceTokenHeader == "" {
		config.DeviceTokenHeader = DefaultDeviceTokenHeader
	}

	s := &Server{
		config:  config,
		logger:  logrus.New(),
		router:  mux.NewRouter(),
		store:   store,
		monitor: monitor,
		version: "dev",
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewAlertHub(s.logger)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(config.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(config.IdleTimeout) * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the live alert hub
func (s *Server) Hub() *AlertHub {
	return s.hub
}

// Start serves HTTP until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")

	s.hub.Start(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		return s.Shutdown()
	case err := <-errChan:
		s.hub.Stop()
		return fmt.Errorf("server error: %w", err)
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.hub.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Error during server shutdown")
		return err
	}

	s.logger.Info("API server shutdown complete")
	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.HealthCheck).Methods(http.MethodGet)

	ingest := api.PathPrefix("/ingest").Subrouter()
	ingest.Use(s.deviceTokenMiddleware)
	ingest.HandleFunc("/camera-health", s.IngestCameraHealth).Methods(http.MethodPost)
	ingest.HandleFunc("/mini-pc-health", s.IngestGatewayHealth).Methods(http.MethodPost)

	admin := api.PathPrefix("").Subrouter()
	admin.Use(s.jwtMiddleware)
	admin.HandleFunc("/monitor/run", s.RunMonitor).Methods(http.MethodPost)
	admin.HandleFunc("/monitor/status", s.MonitorStatus).Methods(http.MethodGet)
	admin.HandleFunc("/alerts", s.ListAlerts).Methods(http.MethodGet)
	admin.HandleFunc("/alerts/resolved", s.DeleteResolvedAlerts).Methods(http.MethodDelete)
	admin.HandleFunc("/alerts/{id}/toggle", s.ToggleAlert).Methods(http.MethodPost)
	admin.HandleFunc("/settings", s.GetSettings).Methods(http.MethodGet)
	admin.HandleFunc("/settings", s.UpdateSettings).Methods(http.MethodPut)
	admin.Handle("/ws", s.hub).Methods(http.MethodGet)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes the standard error envelope
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code ErrorCode, message string) {
	requestID := requestIDFrom(r)
	resp := NewErrorResponse(code, message, r, requestID)

	s.logger.WithFields(logrus.Fields{
		"error_code":  code,
		"message":     message,
		"status_code": resp.Status,
		"path":        resp.Path,
		"method":      resp.Method,
		"request_id":  requestID,
	}).Debug("API error response")

	s.writeJSON(w, resp, resp.Status)
}
