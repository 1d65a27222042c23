package handlers

import (
	"net/http"
	"time"

	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/middleware"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/pkg/dto"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	roleService RoleServiceInterface
	log         logrus.FieldLogger
}

func NewAdminHandler(roleService RoleServiceInterface, log logrus.FieldLogger) *AdminHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &AdminHandler{roleService: roleService, log: log}
}

// GrantRole makes the user with the given email an administrator. The
// granting admin is recorded on the assignment.
func (h *AdminHandler) GrantRole(c *drift.Context) {
	var req dto.GrantRoleRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	grantedBy := middleware.GetUserID(c)
	assignment, err := h.roleService.GrantAdminByEmail(c.Request.Context(), req.Email, grantedBy)
	if err != nil {
		respondError(c, h.log, err, "failed to grant role")
		return
	}

	_ = c.JSON(http.StatusCreated, toRoleResponse(assignment))
}

func toRoleResponse(a *models.RoleAssignment) dto.RoleResponse {
	return dto.RoleResponse{
		UserID:    a.UserID,
		Role:      a.Role,
		GrantedBy: a.GrantedBy,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}
