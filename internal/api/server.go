package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/andersonshatch/soma-btle-blind-controller/internal/device"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/discovery"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/config"
	"github.com/andersonshatch/soma-btle-blind-controller/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ScanStatusProvider reports the discovery session. Satisfied by
// *discovery.Orchestrator.
type ScanStatusProvider interface {
	Status() discovery.Status
}

// HistoryLister lists persisted sightings. Satisfied by device.Repository.
type HistoryLister interface {
	List(ctx context.Context) ([]device.Sighting, error)
}

// HealthChecker is a dependency reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.DashboardConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *device.Registry

	// Optional.
	Scan    ScanStatusProvider
	History HistoryLister
	Checks  map[string]HealthChecker
	DB      DBStatsProvider
	Version string
}

// Server is the dashboard HTTP server.
//
// It is created with New, started with Start and stopped with Close.
type Server struct {
	cfg       config.DashboardConfig
	logger    *logging.Logger
	registry  *device.Registry
	scan      ScanStatusProvider
	history   HistoryLister
	checks    map[string]HealthChecker
	db        DBStatsProvider
	version   string
	startTime time.Time

	hub     *Hub
	server  *http.Server
	unwatch func()
	cancel  context.CancelFunc

	addrMu sync.RWMutex
	addr   net.Addr
}

// New creates a server with the given dependencies. It does not listen
// until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		registry:  deps.Registry,
		scan:      deps.Scan,
		history:   deps.History,
		checks:    deps.Checks,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}
	s.hub = NewHub(deps.WS, s.logger)
	return s, nil
}

// Start binds the listener, relays registry events to the WebSocket hub
// and serves in a background goroutine. Bind errors are returned.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.unwatch = s.registry.Watch(s.relayEvent)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		s.unwatch()
		return fmt.Errorf("dashboard listen on %s: %w", s.server.Addr, err)
	}
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()

	s.logger.Info("dashboard listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dashboard server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

// Close stops relaying events and shuts the server down, waiting up to
// 10 seconds for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unwatch != nil {
		s.unwatch()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("dashboard shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down dashboard: %w", err)
	}
	return nil
}

// HealthCheck verifies the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("dashboard health check: %w", ctx.Err())
	default:
	}

	if s.Addr() == nil {
		return fmt.Errorf("dashboard not started")
	}
	return nil
}

// relayEvent forwards a registry change to WebSocket subscribers.
func (s *Server) relayEvent(ev device.Event) {
	s.hub.Broadcast(ev.Type, newDeviceResponse(ev.Device))
}
