package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// Client is a single connected WebSocket client.
type Client struct {
	conn   *websocket.Conn
	send   chan Snapshot
	logger *zap.Logger
}

// Hub manages active WebSocket connections and broadcasts snapshots.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("ws client connected", zap.Int("clients", h.ClientCount()))
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("ws client disconnected", zap.Int("clients", h.ClientCount()))
}

// Broadcast sends a snapshot to all connected clients, dropping it for any
// client whose send buffer is full rather than blocking the push loop.
func (h *Hub) Broadcast(snap Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- snap:
		default:
			h.logger.Warn("ws client send buffer full, dropping frame")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run pushes snap() to every connected client every interval until ctx is
// canceled (spec §6: "the WebSocket push loop sleeps 1 s between frames").
func (h *Hub) Run(ctx context.Context, interval time.Duration, snap SnapshotFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Broadcast(snap())
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, c.conn, snap)
			cancel()
			if err != nil {
				c.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}
}

// readPump drains client frames to detect disconnect; the protocol has no
// client-to-server messages.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
