package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"clip-catalog/internal/events"
	"clip-catalog/internal/logging"
)

const (
	streamBuffer      = 64
	heartbeatInterval = 25 * time.Second
	wsWriteTimeout    = 5 * time.Second
)

// StreamEvents relays bus events as Server-Sent Events until the client
// goes away or the bus is closed.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, unsubscribe := h.bus.Subscribe(streamBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				logging.Error("Encoding %s event: %v", e.Kind, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// StreamWebSocket relays bus events as JSON text frames. Client messages
// are ignored.
func (h *Handlers) StreamWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		logging.Warn("WebSocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ch, unsubscribe := h.bus.Subscribe(streamBuffer)
	defer unsubscribe()

	// CloseRead discards client frames and cancels ctx when the peer closes.
	ctx := conn.CloseRead(r.Context())
	logging.Debug("WebSocket client connected from %s", r.RemoteAddr)

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
				return
			}
			if err := writeEvent(ctx, conn, e); err != nil {
				logging.Debug("WebSocket client %s dropped: %v", r.RemoteAddr, err)
				return
			}
		case <-h.ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
			return
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
