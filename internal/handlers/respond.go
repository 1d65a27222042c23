package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/dimitrije/reclama-api/pkg/dto"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/sirupsen/logrus"
)

// respondError maps the service error taxonomy to an HTTP response.
// Unexpected errors are logged at error level and answered with fallback.
func respondError(c *drift.Context, log logrus.FieldLogger, err error, fallback string) {
	var ve *services.ValidationError
	switch services.KindOf(err) {
	case services.KindValidation:
		resp := dto.ErrorResponse{Error: err.Error()}
		if errors.As(err, &ve) {
			resp.Error = "validation failed"
			resp.Fields = ve.Fields
		}
		_ = c.JSON(http.StatusBadRequest, resp)
	case services.KindNotFound:
		c.NotFound(err.Error())
	case services.KindUnauthorized:
		c.Unauthorized(err.Error())
	case services.KindForbidden:
		c.Forbidden(err.Error())
	case services.KindConflict:
		_ = c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	case services.KindConnectivity:
		log.WithError(err).WithField("path", c.Request.URL.Path).Warn("backend unavailable")
		c.Response.Header().Set("Retry-After", "5")
		_ = c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:     "serviço temporariamente indisponível",
			Retryable: true,
		})
	default:
		log.WithError(err).WithField("path", c.Request.URL.Path).Error(fallback)
		c.InternalServerError(fallback)
	}
}

func toUserResponse(user *models.User, displayName *string) *dto.UserResponse {
	if user == nil {
		return nil
	}
	return &dto.UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: displayName,
		AvatarURL:   user.AvatarURL,
		Provider:    user.Provider,
	}
}

func toReportResponse(r *models.Report) dto.ReportResponse {
	return dto.ReportResponse{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.DisplayTitle(),
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Status:      string(r.Status),
		StatusLabel: r.Status.Label(),
		ImageURL:    r.ImageURL,
		OwnerName:   r.OwnerName,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
	}
}

func statusStrings(statuses []models.ReportStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
