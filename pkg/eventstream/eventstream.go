// Package eventstream broadcasts settlement lifecycle events to connected
// WebSocket subscribers, the way goXRPLd broadcasts ledger-closed and
// transaction events to its RPC WebSocket clients: each connection gets
// its own buffered send channel, and events that do not fit a slow
// reader's full channel are dropped for that reader (its connection stays
// open) rather than allowed to block the broadcaster.
package eventstream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/payattn/payattn/core"
	"github.com/payattn/payattn/pkg/log"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Hub fans a stream of core.Event values out to every connected WebSocket
// client. The zero value is not usable; construct with New.
type Hub struct {
	upgrader websocket.Upgrader
	log      log.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan core.Event
	offer  string // empty subscribes to every offer
}

// New creates a Hub. CORS/origin checking is left permissive, matching the
// coordinator daemon's own CORS policy, since the stream carries no
// secrets beyond what the REST API already exposes.
func New(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     logger,
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams events until
// the client disconnects. An optional "offer_id" query parameter narrows
// the stream to just that offer; omitted, the client receives every event.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:    r.RemoteAddr + "-" + time.Now().String(),
		conn:  conn,
		send:  make(chan core.Event, sendBuffer),
		offer: r.URL.Query().Get("offer_id"),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards inbound messages (the stream is publish-only) and
// exits, closing the connection, once the client goes away.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(evt); err != nil {
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

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.conn.Close()
}

// Publish broadcasts evt to every subscriber of its offer (or of
// everything, for subscribers that didn't narrow their stream). A
// subscriber whose send buffer is full is skipped rather than blocked.
func (h *Hub) Publish(evt core.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.offer != "" && c.offer != evt.OfferID {
			continue
		}
		select {
		case c.send <- evt:
		default:
			h.log.Warn("dropping event for slow subscriber", "client", c.id)
		}
	}
}
