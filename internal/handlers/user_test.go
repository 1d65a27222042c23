package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/dimitrije/reclama-api/internal/middleware"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/dimitrije/reclama-api/pkg/dto"
	"github.com/m1z23r/drift/pkg/drift"
	driftmw "github.com/m1z23r/drift/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupUserApp(t *testing.T) (*fixture, http.Handler) {
	t.Helper()
	f := setupFixture(t)
	handler := NewUserHandler(f.authSvc, nil)

	app := drift.New()
	app.Use(driftmw.BodyParser())
	app.Use(middleware.Identity(f.gate, false))
	app.Get("/users/me", handler.GetMe)
	app.Patch("/users/me", handler.UpdateMe)
	return f, app
}

func TestUserHandler_GetMe(t *testing.T) {
	f, app := setupUserApp(t)

	rec := serve(app, newRequest(http.MethodGet, "/users/me", "user-token", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, f.user.ID, resp.ID)
	assert.Equal(t, f.user.Email, resp.Email)
	assert.Equal(t, models.ProviderEmail, resp.Provider)
	require.NotNil(t, resp.DisplayName)
	assert.Equal(t, "Maria Silva", *resp.DisplayName)
}

func TestUserHandler_GetMe_Anonymous(t *testing.T) {
	_, app := setupUserApp(t)

	rec := serve(app, newRequest(http.MethodGet, "/users/me", "", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserHandler_UpdateMe(t *testing.T) {
	f, app := setupUserApp(t)

	name := "Maria S."
	f.authSvc.On("UpdateName", mock.Anything, f.user.ID, name).Return(&models.Profile{ID: f.user.ID, Name: &name}, nil)

	rec := serve(app, newRequest(http.MethodPatch, "/users/me", "user-token", jsonBody(dto.UpdateUserRequest{Name: name})))

	assert.Equal(t, http.StatusOK, rec.Code)
	f.authSvc.AssertExpectations(t)
}

func TestUserHandler_UpdateMe_Validation(t *testing.T) {
	f, app := setupUserApp(t)

	f.authSvc.On("UpdateName", mock.Anything, f.user.ID, "").Return(nil, &services.ValidationError{
		Fields: map[string]string{"name": "Informe seu nome."},
	})

	rec := serve(app, newRequest(http.MethodPatch, "/users/me", "user-token", jsonBody(dto.UpdateUserRequest{})))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Informe seu nome.", resp.Fields["name"])
}

func TestUserHandler_UpdateMe_Anonymous(t *testing.T) {
	f, app := setupUserApp(t)

	rec := serve(app, newRequest(http.MethodPatch, "/users/me", "", jsonBody(dto.UpdateUserRequest{Name: "x"})))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	f.authSvc.AssertNotCalled(t, "UpdateName", mock.Anything, mock.Anything, mock.Anything)
}
