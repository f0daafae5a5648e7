package netinfo

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/grandcat/zeroconf"

	"github.com/nerrad567/relaybox/internal/infrastructure/config"
)

// txtVersion is the TXT record protocol version.
const txtVersion = "version=1"

// txtPath tells browsers where the relay endpoints live.
const txtPath = "path=/api"

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)

// Advertiser announces the running relay on the local network via mDNS.
type Advertiser struct {
	cfg        config.MDNSConfig
	registerFn registerFunc
	server     *zeroconf.Server
}

// NewAdvertiser creates an idle Advertiser.
func NewAdvertiser(cfg config.MDNSConfig) *Advertiser {
	return &Advertiser{cfg: cfg, registerFn: zeroconf.Register}
}

// Start registers the relay service on port. Starting an already-advertising
// Advertiser replaces the previous registration.
func (a *Advertiser) Start(port int) error {
	if strings.TrimSpace(a.cfg.Instance) == "" {
		return errors.New("mdns instance name is required")
	}
	if port <= 0 {
		return errors.New("mdns port must be > 0")
	}

	a.Stop()

	server, err := a.registerFn(a.cfg.Instance, a.cfg.Service, a.cfg.Domain, port, []string{txtVersion, txtPath}, nil)
	if err != nil {
		return fmt.Errorf("register mDNS service: %w", err)
	}
	a.server = server
	return nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
}
