package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/relaybox/internal/infrastructure/config"
	"github.com/nerrad567/relaybox/internal/infrastructure/logging"
	"github.com/nerrad567/relaybox/internal/relay"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "relaybox-test",
		},
		QoS:         1,
		TopicPrefix: "relaybox-test",
		QueueSize:   4,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// requireBroker skips the test unless a broker listens on the test address.
func requireBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 200*time.Millisecond)
	if err != nil {
		t.Skip("no MQTT broker on 127.0.0.1:1883")
	}
	conn.Close() //nolint:errcheck // reachability check only
}

// =============================================================================
// Topics
// =============================================================================

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"mailbox A", Topics{Prefix: "relaybox"}.Mailbox(relay.PopulationA, "dev1"), "relaybox/A/dev1"},
		{"mailbox B", Topics{Prefix: "site"}.Mailbox(relay.PopulationB, "s-7"), "site/B/s-7"},
		{"default prefix", Topics{}.Mailbox(relay.PopulationA, "x"), "relaybox/A/x"},
		{"trailing slash", Topics{Prefix: "site/"}.SystemStatus(), "site/system/status"},
		{"separators escaped", Topics{}.Mailbox(relay.PopulationA, "a/b+c#"), "relaybox/A/a_b_c_"},
		{"status", Topics{}.SystemStatus(), "relaybox/system/status"},
		{"population B", Topics{Prefix: "x"}.Mailbox(relay.PopulationB, "b7"), "x/B/b7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// =============================================================================
// Options
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "relay", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "relaybox-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "relay" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS should not be configured when disabled")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %v, want ssl://127.0.0.1:8883", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS 1.2 minimum not configured")
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)
	configureLWT(opts, Topics{Prefix: cfg.TopicPrefix}, cfg.Broker.ClientID)

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "relaybox-test/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("WillRetained=%v WillQos=%d, want true/1", opts.WillRetained, opts.WillQos)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if p.Status != "offline" || p.Reason != "unexpected_disconnect" || p.ClientID != "relaybox-test" {
		t.Errorf("will payload = %+v", p)
	}
}

// =============================================================================
// Mirror
// =============================================================================

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
	got  chan struct{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{got: make(chan struct{}, 64)}
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, published{topic, payload, qos, retained})
	err := f.err
	f.mu.Unlock()
	f.got <- struct{}{}
	return err
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func waitPublished(t *testing.T, f *fakePublisher, n int) {
	t.Helper()
	for range n {
		select {
		case <-f.got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for publish")
		}
	}
}

func sendEvent(p relay.Population, id, msg string) relay.Event {
	return relay.Event{
		Kind:       relay.EventSend,
		Population: p,
		DeviceID:   id,
		Record:     relay.Record{DeviceID: id, Message: msg, Timestamp: "10:00:00"},
	}
}

func TestMirrorPublishesSends(t *testing.T) {
	pub := newFakePublisher()
	m := NewMirror(pub, testConfig(), logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Observe(sendEvent(relay.PopulationA, "dev1", "hello"))
	m.Observe(relay.Event{Kind: relay.EventRead, Population: relay.PopulationA, DeviceID: "dev1", Found: true})
	m.Observe(relay.Event{Kind: relay.EventRejected, Population: relay.PopulationB})
	m.Observe(sendEvent(relay.PopulationB, "s/1", "world"))

	waitPublished(t, pub, 2)

	msgs := pub.messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if msgs[0].topic != "relaybox-test/A/dev1" || msgs[1].topic != "relaybox-test/B/s_1" {
		t.Errorf("topics = %q, %q", msgs[0].topic, msgs[1].topic)
	}
	if !msgs[0].retained || msgs[0].qos != 1 {
		t.Errorf("retained=%v qos=%d, want true/1", msgs[0].retained, msgs[0].qos)
	}

	var rec relay.Record
	if err := json.Unmarshal(msgs[0].payload, &rec); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if rec.DeviceID != "dev1" || rec.Message != "hello" || rec.Timestamp != "10:00:00" {
		t.Errorf("record = %+v", rec)
	}
	deadline := time.Now().Add(2 * time.Second)
	for m.Published() != 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Published() != 2 {
		t.Errorf("Published() = %d, want 2", m.Published())
	}
}

func TestMirrorDropsWhenFull(t *testing.T) {
	pub := newFakePublisher()
	cfg := testConfig()
	cfg.QueueSize = 2
	m := NewMirror(pub, cfg, logging.Discard())

	// No worker running: the queue fills and the rest are dropped.
	for i := range 5 {
		m.Observe(sendEvent(relay.PopulationA, "dev", string(rune('a'+i))))
	}

	if m.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", m.Dropped())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	waitPublished(t, pub, 2)
}

func TestMirrorPublishErrorsNotCounted(t *testing.T) {
	pub := newFakePublisher()
	pub.err = ErrNotConnected
	m := NewMirror(pub, testConfig(), logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.Observe(sendEvent(relay.PopulationA, "dev1", "x"))
	waitPublished(t, pub, 1)

	if m.Published() != 0 {
		t.Errorf("Published() = %d, want 0", m.Published())
	}
}

func TestMirrorRunStopsOnCancel(t *testing.T) {
	m := NewMirror(newFakePublisher(), testConfig(), logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewMirrorDefaultQueue(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 0
	m := NewMirror(newFakePublisher(), cfg, logging.Discard())

	if cap(m.queue) != defaultQueueSize {
		t.Errorf("queue capacity = %d, want %d", cap(m.queue), defaultQueueSize)
	}
}

// =============================================================================
// Broker tests (skipped without a local broker)
// =============================================================================

func TestConnectInvalidBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the connect timeout")
	}
	cfg := testConfig()
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if err == nil {
		t.Fatal("Connect() expected error for invalid broker")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectPublishClose(t *testing.T) {
	requireBroker(t)

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	topic := client.Topics().Mailbox(relay.PopulationA, "test-device")
	if err := client.PublishRetained(topic, []byte(`{"device_id":"test-device"}`)); err != nil {
		t.Errorf("PublishRetained() error = %v", err)
	}
	// Clear the retained message again.
	if err := client.Publish(topic, nil, 1, true); err != nil {
		t.Errorf("Publish(clear) error = %v", err)
	}

	if err := client.Publish("", nil, 0, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Publish(topic, nil, 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish(qos 3) error = %v, want ErrInvalidQoS", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.Publish(topic, []byte("x"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish after Close error = %v, want ErrNotConnected", err)
	}
}
