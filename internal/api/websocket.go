package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-home/internal/home"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/logging"
)

// Feed frame types.
const (
	FrameSnapshot = "snapshot"
	FrameEvent    = "event"
	FramePong     = "pong"

	// feedBufferSize is the per-client outbound frame buffer.
	feedBufferSize = 256

	snapshotTimeout = 5 * time.Second
)

// Frame is one message on the dashboard feed.
//
// The first frame on a connection is a snapshot of the home; every later
// frame is an orchestrator event (state.changed, door.changed,
// capability.changed, command.executed) or a pong.
type Frame struct {
	Type  string    `json:"type"`
	Event string    `json:"event,omitempty"`
	At    time.Time `json:"at"`
	Data  any       `json:"data,omitempty"`
}

// Hub fans orchestrator events out to connected dashboards.
//
// Sends to a client happen under the hub's read lock and removal closes the
// client's channel under the write lock, so a send never races a close.
type Hub struct {
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	closed  bool
}

// feedClient is one dashboard connection. events is fixed at connect time;
// nil means every event.
type feedClient struct {
	conn    *websocket.Conn
	send    chan []byte
	events  map[string]bool
	dropped atomic.Int64
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Publish sends ev to every client that asked for its type. A client whose
// buffer is full misses the frame.
func (h *Hub) Publish(ev home.Event) {
	data, err := json.Marshal(Frame{Type: FrameEvent, Event: ev.Type, At: time.Now().UTC(), Data: ev.Data})
	if err != nil {
		h.logger.Error("encoding feed event", "event", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.events != nil && !c.events[ev.Type] {
			continue
		}
		select {
		case c.send <- data:
		default:
			c.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *feedClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *feedClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Debug("feed client disconnected", "clients", n, "dropped_frames", c.dropped.Load())
	}
}

// parseEventFilter reads ?events=a,b. Empty means every event.
func parseEventFilter(raw string) map[string]bool {
	var events map[string]bool
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			if events == nil {
				events = make(map[string]bool)
			}
			events[name] = true
		}
	}
	return events
}

// handleWebSocket opens a dashboard feed. With auth enabled a ticket query
// parameter (from POST /auth/ws-ticket) is required.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.authEnabled() {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		if !s.tickets.redeem(ticket, time.Now()) {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		conn:   conn,
		send:   make(chan []byte, feedBufferSize),
		events: parseEventFilter(r.URL.Query().Get("events")),
	}

	// The snapshot is queued before the client can receive events, so it is
	// always the first frame.
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	snap, err := s.home.Snapshot(ctx)
	cancel()
	if err != nil {
		s.logger.Warn("feed snapshot failed", "error", err)
	} else if data, err := json.Marshal(Frame{Type: FrameSnapshot, At: time.Now().UTC(), Data: snap}); err == nil {
		c.send <- data
	}

	if !s.hub.add(c) {
		conn.Close()
		return
	}
	s.logger.Debug("feed client connected", "clients", s.hub.ClientCount())

	go c.writePump(s.wsCfg)
	go c.readPump(s.hub, s.wsCfg)
}

// readPump keeps the read deadline alive and answers pings. It unregisters
// the client when the connection ends.
func (c *feedClient) readPump(h *Hub, cfg config.WebSocketConfig) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	//nolint:errcheck // best-effort deadline
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("feed read error", "error", err)
			}
			return
		}
		//nolint:errcheck // best-effort deadline
		c.conn.SetReadDeadline(time.Now().Add(wait))

		// Browsers cannot send protocol pings, so {"type":"ping"} is
		// answered in-band. Anything else is ignored.
		var in struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(message, &in) == nil && in.Type == "ping" {
			if data, err := json.Marshal(Frame{Type: FramePong, At: time.Now().UTC()}); err == nil {
				h.mu.RLock()
				if _, ok := h.clients[c]; ok {
					select {
					case c.send <- data:
					default:
					}
				}
				h.mu.RUnlock()
			}
		}
	}
}

// writePump drains send and pings on the configured interval.
func (c *feedClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			//nolint:errcheck // write errors are caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // write errors are caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
