package relay

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/relaybox/internal/infrastructure/config"
	"github.com/nerrad567/relaybox/internal/infrastructure/logging"
)

// Options configures a Service.
type Options struct {
	// Sink receives one line per recognized request. Defaults to a sink that
	// drops everything.
	Sink LogSink

	// Observers are notified after every recognized request, in order.
	Observers []Observer

	// Logger receives transport diagnostics (request logs, recovered panics).
	Logger *logging.Logger

	// Timeouts are applied to the HTTP server. Zero values disable them.
	Timeouts config.TimeoutConfig
}

// Stats is a point-in-time view of the running relay.
type Stats struct {
	Running   bool      `json:"running"`
	Addr      string    `json:"addr,omitempty"`
	DevicesA  int       `json:"devices_a"`
	DevicesB  int       `json:"devices_b"`
	Requests  uint64    `json:"requests"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Service is the relay mailbox HTTP service.
//
// It has two states, stopped and running. Every Start creates a fresh
// registry and request counter; Stop discards them.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Service struct {
	sink      LogSink
	observers []Observer
	logger    *logging.Logger
	timeouts  config.TimeoutConfig
	now       func() time.Time

	mu   sync.Mutex
	inst *instance
}

// instance is the state owned by one running period of the service.
type instance struct {
	svc       *Service
	registry  *Registry
	requests  atomic.Uint64
	startedAt time.Time
	handler   http.Handler
	server    *http.Server
	listener  net.Listener
}

// New creates a stopped relay service.
func New(opts Options) *Service {
	s := &Service{
		sink:      opts.Sink,
		observers: opts.Observers,
		logger:    opts.Logger,
		timeouts:  opts.Timeouts,
		now:       time.Now,
	}
	if s.sink == nil {
		s.sink = discardSink{}
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

func (s *Service) newInstance() *instance {
	in := &instance{
		svc:       s,
		registry:  newRegistryWithClock(s.now),
		startedAt: s.now(),
	}
	in.handler = in.routes()
	return in
}

// Start binds bindAddress:port and begins serving in the background.
//
// Exactly one bind attempt is made. A bind failure is returned as a
// *BindError; the service stays stopped.
func (s *Service) Start(bindAddress string, port int) error {
	if port < 1 || port > 65535 {
		return ErrInvalidPort
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inst != nil {
		return ErrAlreadyRunning
	}

	addr := net.JoinHostPort(bindAddress, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return newBindError(addr, err)
	}

	in := s.newInstance()
	in.listener = ln
	in.server = &http.Server{
		Handler:           in.handler,
		ReadTimeout:       s.timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.timeouts.ReadTimeout(),
		WriteTimeout:      s.timeouts.WriteTimeout(),
		IdleTimeout:       s.timeouts.IdleTimeout(),
	}
	s.inst = in

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("relay server error", "error", err)
		}
	}(in.server)

	s.logger.Info("relay listening", "address", ln.Addr().String())
	return nil
}

// Stop closes the listener and every open connection, then discards the
// registry. The port can be bound again as soon as Stop returns. In-flight requests are abandoned. Stop on a stopped service is
// a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	in := s.inst
	s.inst = nil
	s.mu.Unlock()

	if in == nil {
		return
	}

	//nolint:errcheck // the service is stopped regardless
	in.server.Close()
	// Serve may not have registered the listener with the server yet, in
	// which case Close leaves it open. The port must be free once Stop returns.
	if err := in.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("closing relay listener", "error", err)
	}
	s.logger.Info("relay stopped", "address", in.listener.Addr().String())
}

// Running reports whether the service is running.
func (s *Service) Running() bool {
	return s.current() != nil
}

// Addr returns the bound listener address, or "" when stopped.
func (s *Service) Addr() string {
	in := s.current()
	if in == nil {
		return ""
	}
	return in.listener.Addr().String()
}

// Stats returns device counts and request totals for the current run.
func (s *Service) Stats() Stats {
	in := s.current()
	if in == nil {
		return Stats{}
	}
	return Stats{
		Running:   true,
		Addr:      in.listener.Addr().String(),
		DevicesA:  in.registry.Count(PopulationA),
		DevicesB:  in.registry.Count(PopulationB),
		Requests:  in.requests.Load(),
		StartedAt: in.startedAt,
	}
}

// Handler returns an http.Handler that serves the relay endpoints against
// the current run's registry. While stopped it answers every request with
// the failure envelope.
func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		in := s.current()
		if in == nil {
			writeFailure(w, msgStopped)
			return
		}
		in.handler.ServeHTTP(w, r)
	})
}

func (s *Service) current() *instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst
}
