// Package console provides the operator HTTP API for relaybox.
//
// It replaces a desktop control panel: operators start and stop the relay,
// read its status (bind address, LAN and public IP, device counts), and
// follow the relay log live over a WebSocket.
//
// The server follows the same lifecycle pattern as other components:
//
//	srv, err := console.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/relaybox/internal/control"
	"github.com/nerrad567/relaybox/internal/infrastructure/config"
	"github.com/nerrad567/relaybox/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// Controller is the relay control surface used by the console.
type Controller interface {
	Start(ctx context.Context) error
	StartAt(ctx context.Context, host string, port int) error
	Stop()
	Status() control.Status
}

// Deps holds the dependencies required by the console server.
type Deps struct {
	Config     config.ConsoleConfig
	Controller Controller
	Hub        *Hub
	Logger     *logging.Logger
	Version    string
}

// Server is the operator console HTTP server.
type Server struct {
	cfg        config.ConsoleConfig
	controller Controller
	hub        *Hub
	logger     *logging.Logger
	version    string
	server     *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
}

// New creates a new console server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("log hub is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	return &Server{
		cfg:        deps.Config,
		controller: deps.Controller,
		hub:        deps.Hub,
		logger:     deps.Logger.With("component", "console"),
		version:    deps.Version,
	}, nil
}

// Start binds the console address and serves in the background.
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("console listen on %s: %w", addr, err)
	}

	var hubCtx context.Context
	hubCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(hubCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("console server error", "error", err)
		}
	}()

	s.logger.Info("console listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound console address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the console server and disconnects log
// stream clients.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("console shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down console: %w", err)
	}
	return nil
}
