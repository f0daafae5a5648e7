package mqtt

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/nerrad567/relaybox/internal/infrastructure/config"
	"github.com/nerrad567/relaybox/internal/infrastructure/logging"
	"github.com/nerrad567/relaybox/internal/relay"
)

// defaultQueueSize bounds pending mirror publishes when config leaves it unset.
const defaultQueueSize = 256

// Publisher is the part of Client the mirror needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

type message struct {
	topic   string
	payload []byte
}

// Mirror is a relay.Observer that republishes every stored record as a
// retained message on <prefix>/<population>/<device_id>.
//
// Observe never blocks: events go onto a bounded queue drained by Run, and
// are dropped when the queue is full.
type Mirror struct {
	pub    Publisher
	topics Topics
	qos    byte
	queue  chan message
	logger *logging.Logger

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewMirror creates a mirror publishing through pub.
func NewMirror(pub Publisher, cfg config.MQTTConfig, logger *logging.Logger) *Mirror {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Mirror{
		pub:    pub,
		topics: Topics{Prefix: cfg.TopicPrefix},
		qos:    byte(cfg.QoS), //nolint:gosec // validated 0..2 by config
		queue:  make(chan message, size),
		logger: logger.With("component", "mqtt-mirror"),
	}
}

// Observe queues a publish for successful sends and ignores other events.
func (m *Mirror) Observe(ev relay.Event) {
	if ev.Kind != relay.EventSend {
		return
	}
	payload, err := json.Marshal(ev.Record)
	if err != nil {
		return
	}

	msg := message{topic: m.topics.Mailbox(ev.Population, ev.DeviceID), payload: payload}
	select {
	case m.queue <- msg:
	default:
		if m.dropped.Add(1) == 1 {
			m.logger.Warn("dropping mirror publishes", "error", ErrQueueFull)
		}
	}
}

// Run publishes queued records until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			if err := m.pub.Publish(msg.topic, msg.payload, m.qos, true); err != nil {
				m.logger.Debug("mirror publish failed", "topic", msg.topic, "error", err)
				continue
			}
			m.published.Add(1)
		}
	}
}

// Published returns how many records reached the broker.
func (m *Mirror) Published() uint64 {
	return m.published.Load()
}

// Dropped returns how many records were discarded because the queue was full.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}
