package handlers

import (
	"github.com/dimitrije/reclama-api/internal/middleware"
	"github.com/dimitrije/reclama-api/internal/sse"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/websocket"
)

// Socket streams the same session events as Events over a WebSocket, for
// clients that cannot hold an event stream open.
func (h *SessionHandler) Socket(c *drift.Context) {
	s := middleware.GetSession(c)
	initial := h.sessionResponse(c, s)

	conn, err := websocket.Upgrade(c)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer func() {
		_ = conn.Close(websocket.CloseNormalClosure, "")
	}()

	client := &sse.Client{
		ID:       uuid.New().String(),
		ClientID: s.ClientID(),
		UserID:   s.UserID(),
		Send:     make(chan []byte, 64),
	}

	h.hub.Register(client)
	defer h.hub.Unregister(client)

	if err := conn.WriteJSON(map[string]interface{}{
		"type":    "connected",
		"session": initial,
	}); err != nil {
		return
	}

	// The reader only detects the peer going away; client messages are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			if err := conn.WriteText(string(msg)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
