package ws

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// PushInterval is the reference cadence for the push loop (spec §6).
const PushInterval = 1 * time.Second

// Handler upgrades `/ws` connections and fans out Hub broadcasts.
type Handler struct {
	hub    *Hub
	logger *zap.Logger
}

// NewHandler creates a WS handler with its own Hub.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{hub: NewHub(logger), logger: logger}
}

// Hub exposes the underlying Hub so callers can start the push loop with
// their own snapshot source.
func (h *Handler) Hub() *Hub {
	return h.hub
}

// RegisterRoutes registers the WebSocket route on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.handleWS)
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan Snapshot, 16),
		logger: h.logger,
	}

	h.hub.Register(client)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
