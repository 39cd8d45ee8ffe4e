package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gorilla/websocket"

	"github.com/evoapps/datastore/pkg/types"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16

	// DefaultBuffer is the depth of the hub's inbound event queue.
	DefaultBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans document change events out to connected WebSocket clients.
type Hub struct {
	events  chan types.ChangeEvent
	dropped atomic.Uint64

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn  *websocket.Conn
	send  chan []byte
	match string // doublestar glob; empty matches every path
}

// New creates a Hub whose inbound queue holds buffer events.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		events:  make(chan types.ChangeEvent, buffer),
		clients: make(map[*client]struct{}),
	}
}

// Publish queues ev for broadcast. It never blocks: when the queue is full
// the event is dropped and counted.
func (h *Hub) Publish(ev types.ChangeEvent) {
	select {
	case h.events <- ev:
	default:
		h.dropped.Add(1)
		slog.Warn("ws: event queue full, dropping change", "path", ev.Path)
	}
}

// Dropped returns how many events Publish has discarded.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Run broadcasts queued events until ctx is cancelled, then closes every
// active connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev := <-h.events:
			h.broadcast(ev)
		}
	}
}

// ServeHTTP upgrades the connection and streams change events to it. The
// optional "match" query parameter restricts the stream to paths matching a
// glob. A hello message is sent first. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	match := r.URL.Query().Get("match")
	if match != "" && !doublestar.ValidatePattern(match) {
		http.Error(w, "invalid match pattern", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn:  conn,
		send:  make(chan []byte, sendBufSize),
		match: match,
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	defer h.unregister(c)

	if data, err := encode(types.EventHello, types.Hello{Time: time.Now().UTC(), Match: match}); err == nil {
		h.enqueue(c, data)
	}

	go c.writePump()
	c.readPump()
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// enqueue delivers data to c if it is still registered.
func (h *Hub) enqueue(c *client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// broadcast sends under the read lock so no send channel can be closed
// mid-send. Clients whose buffer is full are disconnected afterwards.
func (h *Hub) broadcast(ev types.ChangeEvent) {
	data, err := encode(types.EventChange, ev)
	if err != nil {
		slog.Error("ws: encode change", "err", err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if !matches(c.match, ev.Path) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("ws: client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
		h.unregister(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(types.Message{Event: event, Data: data})
}

func matches(pattern, path string) bool {
	if pattern == "" {
		return true
	}
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}

// writePump drains the send channel to the connection and sends periodic
// pings. Runs in its own goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames and detects disconnects. Clients are not
// expected to send data.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
