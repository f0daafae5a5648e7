package control

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/relaybox/internal/infrastructure/config"
	"github.com/nerrad567/relaybox/internal/relay"
)

// fakeRelay scripts Start results per bind address.
type fakeRelay struct {
	mu      sync.Mutex
	fail    map[string]error
	starts  []string
	running bool
	stops   int
}

func (f *fakeRelay) Start(bindAddress string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, bindAddress)
	if err := f.fail[bindAddress]; err != nil {
		return err
	}
	f.running = true
	return nil
}

func (f *fakeRelay) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
}

func (f *fakeRelay) Stats() relay.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return relay.Stats{}
	}
	return relay.Stats{Running: true, DevicesA: 2, DevicesB: 1, Requests: 7, StartedAt: time.Unix(1_700_000_000, 0)}
}

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) Emit(line string) {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
}

type fakeLookup struct {
	ip  string
	err error
}

func (f fakeLookup) PublicIP(context.Context) (string, error) { return f.ip, f.err }

type fakeAdvertiser struct {
	port    int
	stopped bool
}

func (a *fakeAdvertiser) Start(port int) error { a.port = port; return nil }
func (a *fakeAdvertiser) Stop()                { a.stopped = true }

func bindErr(reason relay.BindReason, errno syscall.Errno) error {
	return &relay.BindError{Addr: "x", Reason: reason, Err: errno}
}

func newTestController(t *testing.T, r *fakeRelay, cfg config.RelayConfig) (*Controller, *lineSink) {
	t.Helper()
	sink := &lineSink{}
	c, err := New(Deps{Relay: r, Config: cfg, Sink: sink})
	require.NoError(t, err)
	c.lanIP = func() string { return "192.168.1.5" }
	return c, sink
}

func TestNew_RequiresRelay(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestStart_Success(t *testing.T) {
	r := &fakeRelay{}
	c, sink := newTestController(t, r, config.RelayConfig{Host: "192.168.1.5", Port: 12123})

	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, []string{"192.168.1.5"}, r.starts)
	assert.Equal(t, "relay started: http://192.168.1.5:12123", sink.lines[0])

	st := c.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "http://192.168.1.5:12123", st.URL)
	assert.Equal(t, 2, st.DevicesA)
	assert.Equal(t, 1, st.DevicesB)
	assert.Equal(t, uint64(7), st.Requests)
	require.NotNil(t, st.StartedAt)
	assert.Equal(t, PublicIPDisabled, st.PublicIP)
}

func TestStart_Validation(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		port    int
		wantErr error
	}{
		{name: "port zero", host: "0.0.0.0", port: 0, wantErr: relay.ErrInvalidPort},
		{name: "port too high", host: "0.0.0.0", port: 70000, wantErr: relay.ErrInvalidPort},
		{name: "hostname", host: "localhost", port: 12123, wantErr: ErrInvalidAddress},
		{name: "leading zero", host: "192.168.01.5", port: 12123, wantErr: ErrInvalidAddress},
		{name: "empty", host: "", port: 12123, wantErr: ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRelay{}
			c, sink := newTestController(t, r, config.RelayConfig{})

			err := c.StartAt(context.Background(), tt.host, tt.port)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, r.starts)
			require.Len(t, sink.lines, 1)
			assert.Contains(t, sink.lines[0], "start failed")
		})
	}
}

func TestStart_FallbackToWildcard(t *testing.T) {
	r := &fakeRelay{fail: map[string]error{
		"203.0.113.10": bindErr(relay.BindAddressNotAvailable, syscall.EADDRNOTAVAIL),
	}}
	c, sink := newTestController(t, r, config.RelayConfig{Host: "203.0.113.10", Port: 12123, FallbackToWildcard: true})

	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, []string{"203.0.113.10", "0.0.0.0"}, r.starts)
	assert.Equal(t, "switched to wildcard bind address", sink.lines[0])
	assert.Equal(t, "relay started: http://203.0.113.10:12123", sink.lines[1])
}

func TestStart_NoFallbackWhenDisabled(t *testing.T) {
	r := &fakeRelay{fail: map[string]error{
		"203.0.113.10": bindErr(relay.BindAddressNotAvailable, syscall.EADDRNOTAVAIL),
	}}
	c, sink := newTestController(t, r, config.RelayConfig{Host: "203.0.113.10", Port: 12123})

	err := c.Start(context.Background())

	var be *relay.BindError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, []string{"203.0.113.10"}, r.starts)
	assert.Contains(t, sink.lines[0], "cannot bind 203.0.113.10:12123")
}

func TestStart_FallbackAlsoFails(t *testing.T) {
	r := &fakeRelay{fail: map[string]error{
		"203.0.113.10": bindErr(relay.BindAddressNotAvailable, syscall.EADDRNOTAVAIL),
		"0.0.0.0":      bindErr(relay.BindAddressInUse, syscall.EADDRINUSE),
	}}
	c, sink := newTestController(t, r, config.RelayConfig{Host: "203.0.113.10", Port: 12123, FallbackToWildcard: true})

	require.Error(t, c.Start(context.Background()))
	assert.Contains(t, sink.lines[0], "wildcard bind also failed")
	assert.False(t, c.Status().Running)
}

func TestStart_PortInUse(t *testing.T) {
	r := &fakeRelay{fail: map[string]error{
		"0.0.0.0": bindErr(relay.BindAddressInUse, syscall.EADDRINUSE),
	}}
	c, sink := newTestController(t, r, config.RelayConfig{Host: "0.0.0.0", Port: 8080, FallbackToWildcard: true})

	require.Error(t, c.Start(context.Background()))
	assert.Equal(t, []string{"start failed: port 8080 already in use"}, sink.lines)
	assert.Len(t, r.starts, 1)
}

func TestStart_AlreadyRunning(t *testing.T) {
	r := &fakeRelay{}
	c, _ := newTestController(t, r, config.RelayConfig{Host: "0.0.0.0", Port: 12123})

	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), relay.ErrAlreadyRunning)
}

func TestStart_CancelledContext(t *testing.T) {
	r := &fakeRelay{}
	c, _ := newTestController(t, r, config.RelayConfig{Host: "0.0.0.0", Port: 12123})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Start(ctx), context.Canceled)
	assert.Empty(t, r.starts)
}

func TestStop(t *testing.T) {
	r := &fakeRelay{}
	adv := &fakeAdvertiser{}
	sink := &lineSink{}
	c, err := New(Deps{Relay: r, Config: config.RelayConfig{Host: "0.0.0.0", Port: 12123}, Sink: sink, Advertiser: adv})
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 12123, adv.port)

	c.Stop()

	assert.True(t, adv.stopped)
	assert.Equal(t, 1, r.stops)
	assert.False(t, c.Status().Running)
	assert.Equal(t, "relay stopped", sink.lines[len(sink.lines)-1])

	// Restart after stop is allowed.
	require.NoError(t, c.Start(context.Background()))
}

func TestRefreshPublicIP(t *testing.T) {
	r := &fakeRelay{}

	c, err := New(Deps{Relay: r, Lookup: fakeLookup{ip: "198.51.100.7"}})
	require.NoError(t, err)
	assert.Equal(t, PublicIPPending, c.Status().PublicIP)
	c.RefreshPublicIP(context.Background())
	assert.Equal(t, "198.51.100.7", c.Status().PublicIP)

	c, err = New(Deps{Relay: r, Lookup: fakeLookup{err: errors.New("offline")}})
	require.NoError(t, err)
	c.RefreshPublicIP(context.Background())
	assert.Equal(t, PublicIPUnavailable, c.Status().PublicIP)
}
