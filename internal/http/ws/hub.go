package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	sendBufferSize = 32
)

// Frame is the envelope pushed to admin sockets.
type Frame struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Hub fans relay notifications and presence snapshots out to connected admin
// dashboards. A client that cannot keep up is dropped rather than allowed to
// stall the others.
type Hub struct {
	relay    *service.Relay
	stats    *service.StatsPoller
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Frame
}

func NewHub(relay *service.Relay, stats *service.StatsPoller, logger *slog.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	h := &Hub{
		relay:   relay,
		stats:   stats,
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
	return h
}

// Start attaches the hub to its sources. The returned function detaches.
func (h *Hub) Start() func() {
	unsubRelay := h.relay.Subscribe(func(n domain.Notification) {
		h.broadcast(Frame{Kind: "notification", Data: n})
	})
	unsubStats := h.stats.Subscribe(func(s domain.PresenceStats) {
		h.broadcast(Frame{Kind: "presence_stats", Data: s})
	})
	return func() {
		unsubRelay()
		unsubStats()
		h.closeAll()
	}
}

// Serve upgrades the request and streams frames until the peer goes away.
// Auth and role gating happen in middleware before this point.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan Frame, sendBufferSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	// Replay the current snapshot so the dashboard renders immediately.
	if stats, ok := h.stats.Latest(); ok {
		select {
		case c.send <- Frame{Kind: "presence_stats", Data: stats}:
		default:
		}
	}

	go h.writePump(c)
	h.readPump(c)
}

// ClientCount reports how many sockets are attached.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(f Frame) {
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- f:
		default:
			// Slow consumer: drop it.
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.drop(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload, err := json.Marshal(frame)
			if err != nil {
				h.logger.Warn("websocket frame encode failed", "kind", frame.Kind, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
