// Package notify pushes newly committed content to connected viewers.
//
// Delivery is at-most-once and best-effort: a viewer connected after a
// commit, or disconnected during delivery, never sees that event. Clients
// reconstruct state through the feed listing endpoints; this channel is a
// low-latency hint, not a source of truth.
package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/memefeed-labs/memefeed/internal/app/metrics"
	"github.com/memefeed-labs/memefeed/internal/logging"
)

const writeTimeout = 5 * time.Second

// Broadcaster multicasts a payload to all connected viewers.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// Hub tracks connected websocket viewers and multicasts payloads to them.
// Events are forwarded verbatim with no room filter; clients filter on
// their side.
type Hub struct {
	mu       sync.RWMutex
	viewers  map[*viewerConn]struct{}
	closed   bool
	log      *logging.Logger
	upgrader websocket.Upgrader
}

// viewerConn serializes writes to one viewer; Broadcast and Close may run
// concurrently and gorilla/websocket allows only one writer at a time.
type viewerConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (v *viewerConn) write(messageType int, payload []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return v.conn.WriteMessage(messageType, payload)
}

var _ Broadcaster = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	if log == nil {
		log = logging.NewDefault("notify")
	}
	return &Hub{
		viewers: make(map[*viewerConn]struct{}),
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Feed events are public; origin enforcement happens in
			// the CORS layer for the REST surface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket and registers the viewer
// until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	v := &viewerConn{conn: conn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.viewers[v] = struct{}{}
	count := len(h.viewers)
	h.mu.Unlock()

	metrics.SetFeedViewers(count)
	h.log.WithField("viewers", count).Debug("viewer connected")

	// Read loop drains control frames and detects disconnects; viewers
	// never send application data.
	go func() {
		defer h.drop(v)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast writes the payload to every connected viewer. A slow or dead
// viewer is dropped rather than retried.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	conns := make([]*viewerConn, 0, len(h.viewers))
	for v := range h.viewers {
		conns = append(conns, v)
	}
	h.mu.RUnlock()

	metrics.RecordFeedBroadcast()
	for _, v := range conns {
		if err := v.write(websocket.TextMessage, payload); err != nil {
			h.drop(v)
		}
	}
}

// ViewerCount returns the number of connected viewers.
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Close disconnects all viewers and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true

	for v := range h.viewers {
		v.write(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		)
		v.conn.Close()
	}
	h.viewers = make(map[*viewerConn]struct{})
}

func (h *Hub) drop(v *viewerConn) {
	h.mu.Lock()
	_, ok := h.viewers[v]
	if ok {
		delete(h.viewers, v)
	}
	count := len(h.viewers)
	h.mu.Unlock()

	if ok {
		v.conn.Close()
		metrics.SetFeedViewers(count)
		h.log.Debug("viewer disconnected")
	}
}
