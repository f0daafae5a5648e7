package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/relaybox/internal/infrastructure/config"
	"github.com/nerrad567/relaybox/internal/infrastructure/logging"
	"github.com/nerrad567/relaybox/internal/netinfo"
	"github.com/nerrad567/relaybox/internal/relay"
)

// Public IP status texts shown until, or instead of, an address.
const (
	PublicIPPending     = "looking up"
	PublicIPUnavailable = "unavailable, check network connection"
	PublicIPDisabled    = "disabled"
)

// Relay is the lifecycle surface of the relay service the controller drives.
type Relay interface {
	Start(bindAddress string, port int) error
	Stop()
	Stats() relay.Stats
}

// PublicIPLookup resolves the host's public address.
type PublicIPLookup interface {
	PublicIP(ctx context.Context) (string, error)
}

// Advertiser announces the relay on the local network.
type Advertiser interface {
	Start(port int) error
	Stop()
}

// Deps holds the dependencies required by the Controller.
type Deps struct {
	Relay      Relay
	Config     config.RelayConfig
	Sink       relay.LogSink  // operator lines (started, stopped, failures)
	Lookup     PublicIPLookup // optional
	Advertiser Advertiser     // optional
	Logger     *logging.Logger
}

// Status is the operator view of the relay.
type Status struct {
	Running     bool       `json:"running"`
	BindAddress string     `json:"bind_address"`
	Port        int        `json:"port"`
	URL         string     `json:"url,omitempty"`
	LANIP       string     `json:"lan_ip"`
	PublicIP    string     `json:"public_ip"`
	DevicesA    int        `json:"devices_a"`
	DevicesB    int        `json:"devices_b"`
	Requests    uint64     `json:"requests"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
}

// Controller applies the operator policy around a relay service: input
// validation, the wildcard bind fallback, operator log lines and status.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Controller struct {
	relay      Relay
	sink       relay.LogSink
	lookup     PublicIPLookup
	advertiser Advertiser
	logger     *logging.Logger
	fallback   bool
	lanIP      func() string

	mu       sync.Mutex
	host     string
	port     int
	running  bool
	publicIP string
}

// New creates a Controller for the given relay.
func New(deps Deps) (*Controller, error) {
	if deps.Relay == nil {
		return nil, errors.New("relay is required")
	}
	c := &Controller{
		relay:      deps.Relay,
		sink:       deps.Sink,
		lookup:     deps.Lookup,
		advertiser: deps.Advertiser,
		logger:     deps.Logger,
		fallback:   deps.Config.FallbackToWildcard,
		lanIP:      netinfo.LocalIPv4,
		host:       deps.Config.Host,
		port:       deps.Config.Port,
		publicIP:   PublicIPPending,
	}
	if c.sink == nil {
		c.sink = relay.LogSinkFunc(func(string) {})
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.lookup == nil {
		c.publicIP = PublicIPDisabled
	}
	return c, nil
}

// Start starts the relay on the configured address.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	host, port := c.host, c.port
	c.mu.Unlock()
	return c.StartAt(ctx, host, port)
}

// StartAt validates host and port, then starts the relay. When the address
// is not assignable on this host and fallback is enabled, it retries once on
// the wildcard address. On success host and port become the new defaults.
func (c *Controller) StartAt(ctx context.Context, host string, port int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("starting relay: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return relay.ErrAlreadyRunning
	}

	if port < 1 || port > 65535 {
		c.emit("start failed: port must be between 1 and 65535")
		return relay.ErrInvalidPort
	}
	if !netinfo.ValidIPv4(host) {
		c.emit("start failed: invalid IPv4 address " + strconv.Quote(host))
		return fmt.Errorf("%w: %q", ErrInvalidAddress, host)
	}

	err := c.relay.Start(host, port)

	var bindErr *relay.BindError
	switch {
	case err == nil:
	case errors.As(err, &bindErr) && bindErr.Reason == relay.BindAddressInUse:
		c.emit(fmt.Sprintf("start failed: port %d already in use", port))
		return err
	case errors.As(err, &bindErr) && bindErr.Reason == relay.BindAddressNotAvailable && c.fallback && host != netinfo.WildcardIPv4:
		if retryErr := c.relay.Start(netinfo.WildcardIPv4, port); retryErr != nil {
			c.emit(fmt.Sprintf("start failed: wildcard bind also failed: %v", retryErr))
			return retryErr
		}
		c.emit("switched to wildcard bind address")
	case bindErr != nil:
		c.emit(fmt.Sprintf("start failed: cannot bind %s: %v", net.JoinHostPort(host, strconv.Itoa(port)), bindErr.Err))
		return err
	default:
		c.emit(fmt.Sprintf("start failed: %v", err))
		return err
	}

	c.running = true
	c.host, c.port = host, port
	c.emit("relay started: " + relayURL(host, port))
	c.emit("note: a public IP needs port forwarding on the router")
	c.logger.Info("relay started", "host", host, "port", port)

	if c.advertiser != nil {
		if err := c.advertiser.Start(port); err != nil {
			c.logger.Warn("mdns advertisement failed", "error", err)
		}
	}

	return nil
}

// Stop stops the relay. Stopping a stopped relay only repeats the log line.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.advertiser != nil {
		c.advertiser.Stop()
	}
	c.relay.Stop()
	c.running = false
	c.emit("relay stopped")
}

// Status returns the current operator view.
func (c *Controller) Status() Status {
	stats := c.relay.Stats()

	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Running:     stats.Running,
		BindAddress: c.host,
		Port:        c.port,
		LANIP:       c.lanIP(),
		PublicIP:    c.publicIP,
		DevicesA:    stats.DevicesA,
		DevicesB:    stats.DevicesB,
		Requests:    stats.Requests,
	}
	if stats.Running {
		st.URL = relayURL(c.host, c.port)
		startedAt := stats.StartedAt
		st.StartedAt = &startedAt
	}
	return st
}

// RefreshPublicIP runs the public IP lookup and records the outcome for
// Status. It blocks; callers usually run it in a goroutine.
func (c *Controller) RefreshPublicIP(ctx context.Context) {
	if c.lookup == nil {
		return
	}

	c.setPublicIP(PublicIPPending)
	ip, err := c.lookup.PublicIP(ctx)
	if err != nil {
		c.logger.Warn("public ip lookup failed", "error", err)
		c.setPublicIP(PublicIPUnavailable)
		return
	}
	c.logger.Info("public ip resolved", "ip", ip)
	c.setPublicIP(ip)
}

func (c *Controller) setPublicIP(v string) {
	c.mu.Lock()
	c.publicIP = v
	c.mu.Unlock()
}

func (c *Controller) emit(line string) {
	c.sink.Emit(line)
}

func relayURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}
