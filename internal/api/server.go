// Package api provides the HTTP REST API and WebSocket server for Shadow
// Core.
//
// It exposes the thing registry, synchronous shadow reads and updates, and
// a WebSocket stream of document transitions for dashboards.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmarren/shadow-core/internal/infrastructure/config"
	"github.com/tmarren/shadow-core/internal/infrastructure/logging"
	"github.com/tmarren/shadow-core/internal/shadow"
	"github.com/tmarren/shadow-core/internal/thing"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// stateRequestTimeout bounds shadow reads and updates issued by handlers,
// independent of the HTTP write timeout.
const stateRequestTimeout = 25 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Things  thing.Repository
	Fleet   *shadow.Fleet
	Version string
}

// Server is the HTTP API server for Shadow Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	things  thing.Repository
	fleet   *shadow.Fleet
	version string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Things == nil {
		return nil, fmt.Errorf("thing repository is required")
	}
	if deps.Fleet == nil {
		return nil, fmt.Errorf("device fleet is required")
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		things:  deps.Things,
		fleet:   deps.Fleet,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, attaches document-transition relays for
// every device in the fleet, and launches the HTTP listener in a
// background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	s.relayTransitions(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
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

	return nil
}

// relayTransitions broadcasts every device's document transitions to
// WebSocket clients subscribed to "shadow.state_changed".
func (s *Server) relayTransitions(ctx context.Context) {
	for _, dev := range s.fleet.All() {
		events, cancel := dev.Watch()
		thingID := dev.Identity().ThingID

		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case doc, ok := <-events:
					if !ok {
						return
					}
					s.hub.Broadcast(channelStateChanged, map[string]any{
						"thing_id": thingID,
						"state":    doc.Any(),
					})
				}
			}
		}()
	}
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
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
