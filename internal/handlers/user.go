package handlers

import (
	"net/http"

	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/middleware"
	"github.com/dimitrije/reclama-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/sirupsen/logrus"
)

type UserHandler struct {
	authService AuthServiceInterface
	log         logrus.FieldLogger
}

func NewUserHandler(authService AuthServiceInterface, log logrus.FieldLogger) *UserHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &UserHandler{authService: authService, log: log}
}

func (h *UserHandler) GetMe(c *drift.Context) {
	s := middleware.GetSession(c)
	user := s.User()
	if user == nil {
		c.Unauthorized("not authenticated")
		return
	}

	_ = c.JSON(http.StatusOK, toUserResponse(user, s.DisplayName()))
}

// UpdateMe changes the profile name. Every session of the user picks up the
// new display name from the resulting event.
func (h *UserHandler) UpdateMe(c *drift.Context) {
	s := middleware.GetSession(c)
	userID := s.UserID()
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.UpdateUserRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if _, err := h.authService.UpdateName(c.Request.Context(), userID, req.Name); err != nil {
		respondError(c, h.log, err, "failed to update user")
		return
	}

	_ = c.JSON(http.StatusOK, toUserResponse(s.User(), s.DisplayName()))
}
