package handlers

import (
	"net/http"

	"github.com/dimitrije/reclama-api/internal/identity"
	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/middleware"
	"github.com/dimitrije/reclama-api/internal/sse"
	"github.com/dimitrije/reclama-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/sirupsen/logrus"
)

type SessionHandler struct {
	gate SessionGateInterface
	hub  HubInterface
	log  logrus.FieldLogger
}

func NewSessionHandler(gate SessionGateInterface, hub HubInterface, log logrus.FieldLogger) *SessionHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &SessionHandler{gate: gate, hub: hub, log: log}
}

func (h *SessionHandler) sessionResponse(c *drift.Context, s *identity.Session) dto.SessionResponse {
	snap := s.Snapshot()
	resp := dto.SessionResponse{
		State:   snap.State,
		Loading: snap.Loading,
		User:    toUserResponse(snap.User, snap.DisplayName),
	}
	if snap.User == nil {
		return resp
	}
	check, err := h.gate.IsAdmin(c.Request.Context(), s)
	if err == nil && check.UserID == s.UserID() {
		isAdmin := check.IsAdmin
		resp.IsAdmin = &isAdmin
	}
	return resp
}

// Get reports the caller's session. It never fails: an unresolvable session
// is anonymous.
func (h *SessionHandler) Get(c *drift.Context) {
	_ = c.JSON(http.StatusOK, h.sessionResponse(c, middleware.GetSession(c)))
}

// Events streams the session events of the caller's client until the
// connection closes.
func (h *SessionHandler) Events(c *drift.Context) {
	s := middleware.GetSession(c)
	initial := h.sessionResponse(c, s)

	sseCtx := c.SSE()

	client := &sse.Client{
		ID:       uuid.New().String(),
		ClientID: s.ClientID(),
		UserID:   s.UserID(),
		Send:     make(chan []byte, 64),
	}

	h.hub.Register(client)
	defer h.hub.Unregister(client)

	if err := sseCtx.SendJSON(map[string]interface{}{
		"type":    "connected",
		"session": initial,
	}, "system", ""); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		<-c.Request.Context().Done()
		close(done)
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			if err := sseCtx.Send(string(msg), "session", ""); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
