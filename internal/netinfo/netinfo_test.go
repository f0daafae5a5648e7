package netinfo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/relaybox/internal/infrastructure/config"
)

func TestValidIPv4(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"192.168.1.10", true},
		{"0.0.0.0", true},
		{"255.255.255.255", true},
		{"10.0.0.1", true},
		{"10.00.0.1", false},
		{"01.2.3.4", false},
		{"256.1.1.1", false},
		{"1.2.3", false},
		{"1.2.3.4.5", false},
		{"a.b.c.d", false},
		{"+1.2.3.4", false},
		{"-1.2.3.4", false},
		{"", false},
		{"::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidIPv4(tt.in))
		})
	}
}

func TestFirstIPv4(t *testing.T) {
	loopback := &net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)}
	v6 := &net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)}
	lan := &net.IPNet{IP: net.ParseIP("192.168.1.42"), Mask: net.CIDRMask(24, 32)}

	assert.Equal(t, "192.168.1.42", firstIPv4([]net.Addr{loopback, v6, lan}))
	assert.Equal(t, WildcardIPv4, firstIPv4([]net.Addr{loopback, v6}))
	assert.Equal(t, WildcardIPv4, firstIPv4(nil))
}

func TestLocalIPv4_ReturnsValidAddress(t *testing.T) {
	assert.True(t, ValidIPv4(LocalIPv4()))
}

func TestExtractIPv4(t *testing.T) {
	ip, err := extractIPv4("  203.0.113.7\n")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", ip)

	ip, err = extractIPv4("Current IP Address: 198.51.100.23</body>")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.23", ip)

	_, err = extractIPv4("no address here")
	assert.Error(t, err)

	_, err = extractIPv4("999.1.1.1")
	assert.Error(t, err)
}

func TestExtractIPv4_Boundaries(t *testing.T) {
	tests := []struct {
		body    string
		want    string
		wantErr bool
	}{
		{body: "1234.5.6.7", wantErr: true},
		{body: "1.2.3.4567", wantErr: true},
		{body: "ip=203.0.113.7;", want: "203.0.113.7"},
		{body: "<td>198.51.100.9</td>", want: "198.51.100.9"},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			ip, err := extractIPv4(tt.body)
			if tt.wantErr {
				assert.Error(t, err, "got %q", ip)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ip)
		})
	}
}

func newTestLookup(services ...string) *Lookup {
	return NewLookup(config.PublicIPConfig{
		Services:   services,
		Attempts:   3,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
	}, nil)
}

func TestLookup_FirstServiceWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		fmt.Fprintln(w, "203.0.113.9")
	}))
	t.Cleanup(srv.Close)

	ip, err := newTestLookup(srv.URL).PublicIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", ip)
}

func TestLookup_FallsThroughFailingServices(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(broken.Close)
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "not an ip")
	}))
	t.Cleanup(garbage.Close)
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "198.51.100.1")
	}))
	t.Cleanup(good.Close)

	ip, err := newTestLookup(broken.URL, garbage.URL, good.URL).PublicIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.1", ip)
}

func TestLookup_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "192.0.2.55")
	}))
	t.Cleanup(srv.Close)

	ip, err := newTestLookup(srv.URL).PublicIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.55", ip)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLookup_AllAttemptsFail(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestLookup(srv.URL).PublicIP(context.Background())
	assert.ErrorIs(t, err, ErrPublicIPUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLookup_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestLookup("http://127.0.0.1:1").PublicIP(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAdvertiser_Start(t *testing.T) {
	var (
		gotInstance string
		gotService  string
		gotDomain   string
		gotPort     int
		gotTXT      []string
	)

	adv := NewAdvertiser(config.MDNSConfig{Instance: "relaybox", Service: "_relaybox._tcp", Domain: "local."})
	adv.registerFn = func(instance, service, domain string, port int, text []string, _ []net.Interface) (*zeroconf.Server, error) {
		gotInstance = instance
		gotService = service
		gotDomain = domain
		gotPort = port
		gotTXT = append([]string(nil), text...)
		return nil, nil
	}

	require.NoError(t, adv.Start(12123))
	assert.Equal(t, "relaybox", gotInstance)
	assert.Equal(t, "_relaybox._tcp", gotService)
	assert.Equal(t, "local.", gotDomain)
	assert.Equal(t, 12123, gotPort)
	assert.ElementsMatch(t, []string{"version=1", "path=/api"}, gotTXT)

	adv.Stop()
}

func TestAdvertiser_Errors(t *testing.T) {
	adv := NewAdvertiser(config.MDNSConfig{Instance: "relaybox"})
	adv.registerFn = func(string, string, string, int, []string, []net.Interface) (*zeroconf.Server, error) {
		return nil, errors.New("no multicast")
	}

	assert.Error(t, adv.Start(0))
	assert.ErrorContains(t, adv.Start(12123), "no multicast")

	assert.Error(t, NewAdvertiser(config.MDNSConfig{}).Start(12123))
}
