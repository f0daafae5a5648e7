package console

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/relaybox/internal/infrastructure/config"
	"github.com/nerrad567/relaybox/internal/infrastructure/logging"
	"github.com/nerrad567/relaybox/internal/relay"
)

const (
	// DefaultHistory is the number of log entries kept for late joiners.
	DefaultHistory = 1000

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// entryTimeLayout matches the relay's record timestamps.
	entryTimeLayout = "15:04:05"
)

// Entry is one console log line.
type Entry struct {
	Seq       uint64          `json:"seq"`
	Time      string          `json:"time"`
	Line      string          `json:"line"`
	Direction relay.Direction `json:"direction"`
}

// Hub is the live log: a bounded history of relay and operator lines plus a
// set of WebSocket clients that receive each new line as it is emitted.
// It implements relay.LogSink.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger
	now    func() time.Time

	histMu  sync.RWMutex
	history []Entry // ring buffer, len == capacity once full
	next    int     // ring write position
	seq     uint64

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// wsClient represents a connected WebSocket client.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a log hub keeping the last history entries.
func NewHub(cfg config.WebSocketConfig, history int, logger *logging.Logger) *Hub {
	if history < 1 {
		history = DefaultHistory
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		history: make([]Entry, 0, history),
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Emit records line and pushes it to connected clients.
//
// The history append and the client snapshot happen under histMu, the same
// lock ServeWS holds while replaying and registering, so each line reaches a
// new client exactly once: in its replay or in its stream.
func (h *Hub) Emit(line string) {
	h.histMu.Lock()
	entry := h.appendLocked(line)
	clients := h.clientList()
	h.histMu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		h.logger.Error("failed to marshal log entry", "error", err)
		return
	}
	for _, client := range clients {
		client.trySend(data)
	}
}

func (h *Hub) clientList() []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// appendLocked adds line to the ring. Caller holds histMu.
func (h *Hub) appendLocked(line string) Entry {
	h.seq++
	entry := Entry{
		Seq:       h.seq,
		Time:      h.now().Format(entryTimeLayout),
		Line:      line,
		Direction: relay.ClassifyLine(line),
	}

	if len(h.history) < cap(h.history) {
		h.history = append(h.history, entry)
	} else {
		h.history[h.next] = entry
	}
	h.next = (h.next + 1) % cap(h.history)
	return entry
}

// Recent returns up to limit entries, newest first. A limit of zero or less
// returns the whole history.
func (h *Hub) Recent(limit int) []Entry {
	h.histMu.RLock()
	defer h.histMu.RUnlock()
	return h.recentLocked(limit)
}

func (h *Hub) recentLocked(limit int) []Entry {
	n := len(h.history)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + cap(h.history)) % cap(h.history)
		out = append(out, h.history[idx])
	}
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("log stream client connected", "clients", h.ClientCount())
}

// unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("log stream client disconnected", "clients", h.ClientCount())
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// ServeWS upgrades the request, replays the history oldest first, then
// streams new entries.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	h.histMu.Lock()
	recent := h.recentLocked(0)
	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, len(recent)+wsSendBufferSize),
	}
	for i := len(recent) - 1; i >= 0; i-- {
		data, err := json.Marshal(recent[i])
		if err != nil {
			continue
		}
		client.trySend(data)
	}
	h.register(client)
	h.histMu.Unlock()

	go client.writePump(h.cfg)
	go client.readPump(h.cfg)
}

// readPump drains the connection so close frames and pongs are processed.
// The stream is one-way; client messages are ignored.
func (c *wsClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval, pongWait := wsTimings(cfg)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

// writePump writes messages to the WebSocket connection.
func (c *wsClient) writePump(cfg config.WebSocketConfig) {
	pingInterval, pongWait := wsTimings(cfg)
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsTimings returns the ping interval and pong wait, falling back to
// 30s and 10s for unset values.
func wsTimings(cfg config.WebSocketConfig) (time.Duration, time.Duration) {
	ping := time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = 30 * time.Second
	}
	pong := time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = 10 * time.Second
	}
	return ping, pong
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during broadcast)
// and full buffers (slow client).
func (c *wsClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}
