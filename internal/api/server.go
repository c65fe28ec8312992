package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/luftuj/hru-core/internal/catalog"
	"github.com/luftuj/hru-core/internal/hru"
	"github.com/luftuj/hru-core/internal/infrastructure/config"
	"github.com/luftuj/hru-core/internal/infrastructure/logging"
	"github.com/luftuj/hru-core/internal/modbus"
	"github.com/luftuj/hru-core/internal/settings"
	"github.com/luftuj/hru-core/internal/timeline"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceController is the device surface exposed over HTTP.
// *hru.Controller satisfies it.
type DeviceController interface {
	Units() []*catalog.HeatRecoveryUnit
	ReadValues(ctx context.Context) (*hru.Values, error)
	WriteValues(ctx context.Context, req hru.WriteRequest) error
}

// BoostRunner is the timeline surface exposed over HTTP.
// *timeline.Runner satisfies it.
type BoostRunner interface {
	StartBoost(ctx context.Context, modeID string, durationMinutes int) error
	CancelBoost(ctx context.Context) error
	ActiveState() timeline.ActiveState
	Trigger()
}

// ConnectionInvalidator destroys the pooled connection for an endpoint that
// is no longer configured. *modbus.Pool satisfies it.
type ConnectionInvalidator interface {
	Invalidate(key modbus.Key)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Controller DeviceController
	Runner     BoostRunner
	Timeline   *timeline.Store
	Settings   *settings.Store
	Version    string

	// Connections, when set, is invalidated for the previous Modbus endpoint
	// after an edit changes host/port/unitId. Optional.
	Connections ConnectionInvalidator

	// OnSettingsChanged is invoked after the HRU settings are replaced, so
	// the caller can refresh discovery and re-run the timeline. Optional.
	OnSettingsChanged func()
}

// Server is the HTTP API server for the Luftuj core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	controller  DeviceController
	runner      BoostRunner
	timeline    *timeline.Store
	settings    *settings.Store
	connections ConnectionInvalidator
	version     string
	onChange    func()
	server      *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("device controller is required")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("timeline runner is required")
	}
	if deps.Timeline == nil || deps.Settings == nil {
		return nil, fmt.Errorf("timeline and settings stores are required")
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		controller:  deps.Controller,
		runner:      deps.Runner,
		timeline:    deps.Timeline,
		settings:    deps.Settings,
		connections: deps.Connections,
		version:     deps.Version,
		onChange:    deps.OnSettingsChanged,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
