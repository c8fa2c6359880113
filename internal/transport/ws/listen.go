package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds delivery of one chunk to a listener.
const writeTimeout = 5 * time.Second

// ListenHandler streams every merged chunk to websocket clients at /listen.
// Each client gets its own [Hub] subscription; a client that falls more
// than buffer chunks behind misses chunks rather than slowing others down.
type ListenHandler struct {
	hub    *Hub
	buffer int
}

// NewListenHandler creates a [ListenHandler] on hub.
func NewListenHandler(hub *Hub, buffer int) *ListenHandler {
	return &ListenHandler{hub: hub, buffer: buffer}
}

// ServeHTTP implements [http.Handler].
func (h *ListenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("listen: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	sub := h.hub.Subscribe(r.RemoteAddr, h.buffer)
	defer sub.Close()

	// Listeners never send; CloseRead handles control frames and cancels
	// ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())
	slog.Info("listen: listener connected", "remote", r.RemoteAddr, "listeners", h.hub.Subscribers())

	for {
		select {
		case <-ctx.Done():
			slog.Info("listen: listener disconnected", "remote", r.RemoteAddr)
			return
		case chunk, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := write(ctx, conn, chunk); err != nil {
				slog.Info("listen: write failed", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, chunk []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageBinary, chunk)
}
