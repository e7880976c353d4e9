package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/automation"
	"github.com/nerrad567/gray-logic-home/internal/bridges/launcher"
	"github.com/nerrad567/gray-logic-home/internal/capability"
	"github.com/nerrad567/gray-logic-home/internal/home"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Home is the orchestrator surface the API drives. *home.Orchestrator
// satisfies it.
type Home interface {
	ExecuteCommandByName(ctx context.Context, name, modifier, source string) (*automation.ExecutionResult, error)
	HandleKeyEntry(ctx context.Context, key, modifier, source string) (*automation.ExecutionResult, error)
	SetState(ctx context.Context, s automation.SystemState) error
	SetDoNotDisturb(ctx context.Context, on bool) error
	RingDoorbell(ctx context.Context, source string) error
	Snapshot(ctx context.Context) (home.Snapshot, error)
	SetOnEvent(fn func(home.Event))
}

// Capabilities reports adapter availability. *capability.Supervisor
// satisfies it.
type Capabilities interface {
	Statuses() []capability.Status
}

// Connectivity reports broker connectivity. *mqtt.Client satisfies it.
type Connectivity interface {
	IsConnected() bool
}

// BridgeProcesses reports supervised bridge executables.
// *launcher.Group satisfies it.
type BridgeProcesses interface {
	Stats() []launcher.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Home         Home
	Capabilities Capabilities
	MQTT         Connectivity    // optional, reported by /metrics
	Processes    BridgeProcesses // optional, reported by /metrics
	Version      string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and the dashboard feed.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	home         Home
	capabilities Capabilities
	mqtt         Connectivity
	processes    BridgeProcesses
	version      string
	startTime    time.Time
	tickets      *ticketStore
	server       *http.Server
	hub          *Hub
	cancel       context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Home == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		home:         deps.Home,
		capabilities: deps.Capabilities,
		mqtt:         deps.MQTT,
		processes:    deps.Processes,
		version:      deps.Version,
		startTime:    time.Now(),
		tickets:      newTicketStore(),
	}
	s.hub = NewHub(s.logger)
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, relays orchestrator events to it and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.home.SetOnEvent(func(ev home.Event) {
		s.hub.Publish(ev)
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr, "auth", s.authEnabled())
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

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

	s.home.SetOnEvent(nil)
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

// HealthCheck verifies the API server is running and responsive.
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
