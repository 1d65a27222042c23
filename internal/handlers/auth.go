package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/dimitrije/reclama-api/internal/guard"
	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/middleware"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/dimitrije/reclama-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/sirupsen/logrus"
)

// CookieConfig controls the session cookies written on sign-in.
type CookieConfig struct {
	Secure     bool
	RefreshTTL time.Duration
}

type AuthHandler struct {
	gate         SessionGateInterface
	authService  AuthServiceInterface
	cookies      CookieConfig
	postLoginURL string
	log          logrus.FieldLogger
}

func NewAuthHandler(
	gate SessionGateInterface,
	authService AuthServiceInterface,
	cookies CookieConfig,
	postLoginURL string,
	log logrus.FieldLogger,
) *AuthHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &AuthHandler{
		gate:         gate,
		authService:  authService,
		cookies:      cookies,
		postLoginURL: guard.SafeNext(postLoginURL),
		log:          log,
	}
}

func (h *AuthHandler) Register(c *drift.Context) {
	var req dto.RegisterRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	msg, err := h.gate.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		respondError(c, h.log, err, "failed to register")
		return
	}

	_ = c.JSON(http.StatusCreated, dto.MessageResponse{Message: msg})
}

func (h *AuthHandler) Login(c *drift.Context) {
	var req dto.LoginRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	s := middleware.GetSession(c)
	session, err := h.gate.SignIn(c.Request.Context(), s, req.Email, req.Password)
	if err != nil {
		respondError(c, h.log, err, "failed to sign in")
		return
	}

	h.cookies.setSession(c, session)
	_ = c.JSON(http.StatusOK, h.tokenResponse(session, s.DisplayName()))
}

func (h *AuthHandler) RefreshToken(c *drift.Context) {
	var req dto.RefreshTokenRequest
	_ = c.BindJSON(&req)
	if req.RefreshToken == "" {
		req.RefreshToken = middleware.RefreshToken(c)
	}
	if req.RefreshToken == "" {
		c.BadRequest("refresh_token is required")
		return
	}

	session, err := h.authService.Refresh(c.Request.Context(), middleware.ClientID(c), req.RefreshToken)
	if err != nil {
		if services.KindOf(err) == services.KindUnauthorized {
			h.cookies.clearSession(c)
		}
		respondError(c, h.log, err, "failed to refresh token")
		return
	}

	h.cookies.setSession(c, session)
	_ = c.JSON(http.StatusOK, h.tokenResponse(session, middleware.GetSession(c).DisplayName()))
}

// Logout always succeeds for the caller: the session is cleared before the
// provider is asked to revoke the refresh token.
func (h *AuthHandler) Logout(c *drift.Context) {
	var req dto.RefreshTokenRequest
	_ = c.BindJSON(&req)
	if req.RefreshToken == "" {
		req.RefreshToken = middleware.RefreshToken(c)
	}

	_ = h.gate.SignOut(c.Request.Context(), middleware.GetSession(c), req.RefreshToken)
	h.cookies.clearSession(c)

	_ = c.JSON(http.StatusOK, dto.MessageResponse{Message: "logged out"})
}

func (h *AuthHandler) LogoutAll(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	if err := h.authService.SignOutAll(c.Request.Context(), userID); err != nil {
		respondError(c, h.log, err, "failed to revoke tokens")
		return
	}
	h.cookies.clearSession(c)

	_ = c.JSON(http.StatusOK, dto.MessageResponse{Message: "all sessions logged out"})
}

// ConfirmEmail follows the link sent at sign-up and lands on the login page.
func (h *AuthHandler) ConfirmEmail(c *drift.Context) {
	if _, err := h.authService.ConfirmEmail(c.Request.Context(), c.QueryParam("token")); err != nil {
		h.log.WithError(err).Info("email confirmation rejected")
		seeOther(c, guard.LoginPath+"?error="+url.QueryEscape("Link de confirmação inválido ou expirado."))
		return
	}
	seeOther(c, guard.LoginPath+"?notice=email-confirmado")
}

func (h *AuthHandler) GetConsentURL(c *drift.Context) {
	consentURL, err := h.gate.SignInWithExternalProvider(c.Param("provider"), guard.OptionalNext(c.QueryParam("next")))
	if err != nil {
		respondError(c, h.log, err, "failed to start sign-in")
		return
	}

	_ = c.JSON(http.StatusOK, dto.ConsentURLResponse{URL: consentURL})
}

// Callback completes an external sign-in, sets the session cookies and
// returns the browser to the page it asked for before signing in.
func (h *AuthHandler) Callback(c *drift.Context) {
	if providerErr := c.QueryParam("error"); providerErr != "" {
		h.log.WithField("provider_error", providerErr).Info("external sign-in cancelled")
		seeOther(c, guard.LoginPath+"?error="+url.QueryEscape("Login cancelado."))
		return
	}

	session, next, err := h.authService.CompleteExternal(
		c.Request.Context(),
		c.Param("provider"),
		c.QueryParam("state"),
		c.QueryParam("code"),
		middleware.ClientID(c),
	)
	if err != nil {
		h.log.WithError(err).WithField("provider", c.Param("provider")).Warn("external sign-in failed")
		seeOther(c, guard.LoginPath+"?error="+url.QueryEscape(signInErrorMessage(err)))
		return
	}

	h.cookies.setSession(c, session)
	target := guard.OptionalNext(next)
	if target == "" {
		target = h.postLoginURL
	}
	seeOther(c, target)
}

func (cfg CookieConfig) setSession(c *drift.Context, session *models.AuthSession) {
	middleware.SetCookie(c, middleware.AccessCookie, session.AccessToken, time.Duration(session.ExpiresIn)*time.Second, cfg.Secure)
	middleware.SetCookie(c, middleware.RefreshCookie, session.RefreshToken, cfg.RefreshTTL, cfg.Secure)
}

func (cfg CookieConfig) clearSession(c *drift.Context) {
	middleware.SetCookie(c, middleware.AccessCookie, "", 0, cfg.Secure)
	middleware.SetCookie(c, middleware.RefreshCookie, "", 0, cfg.Secure)
}

func (h *AuthHandler) tokenResponse(session *models.AuthSession, displayName *string) dto.TokenResponse {
	return dto.TokenResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    session.ExpiresIn,
		User:         toUserResponse(session.User, displayName),
	}
}

// signInErrorMessage is the Portuguese message shown on the login page.
func signInErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case services.KindOf(err) == services.KindValidation:
		return "Verifique os dados informados."
	case services.KindOf(err) == services.KindConnectivity:
		return "Serviço temporariamente indisponível. Tente novamente."
	case errors.Is(err, services.ErrEmailNotConfirmed):
		return "Confirme seu email antes de entrar."
	case errors.Is(err, services.ErrInvalidCredentials):
		return "Email ou senha incorretos."
	case services.KindOf(err) == services.KindUnauthorized:
		return "Não foi possível concluir o login."
	default:
		return "Erro inesperado. Tente novamente."
	}
}

func seeOther(c *drift.Context, location string) {
	c.Response.Header().Set("Location", location)
	c.Response.Header().Set("Cache-Control", "no-store")
	c.Response.WriteHeader(http.StatusSeeOther)
	c.Abort()
}
