package guard

import (
	"net/http"

	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/metrics"
	"github.com/dimitrije/reclama-api/internal/middleware"
	"github.com/dimitrije/reclama-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/sirupsen/logrus"
)

const retryAfterSeconds = "1"

type Options struct {
	// Loading renders the page shown while a decision is pending. The guard
	// sets the status and Retry-After header first.
	Loading drift.HandlerFunc
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Guards builds route middleware from the decision functions. Pages answer
// with redirects and a loading view; the API answers with status codes.
type Guards struct {
	roles   AdminChecker
	loading drift.HandlerFunc
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func New(roles AdminChecker, opts Options) *Guards {
	g := &Guards{
		roles:   roles,
		loading: opts.Loading,
		log:     opts.Log,
		metrics: opts.Metrics,
	}
	if g.log == nil {
		g.log = logging.Discard()
	}
	if g.loading == nil {
		g.loading = defaultLoading
	}
	return g
}

func defaultLoading(c *drift.Context) {
	_ = c.HTML(http.StatusServiceUnavailable, `<!DOCTYPE html><html lang="pt-BR"><head><meta charset="UTF-8"><meta http-equiv="refresh" content="1"><title>Carregando...</title></head><body><p>Carregando...</p></body></html>`)
}

// AuthenticatedPage redirects anonymous visitors to the login page, keeping
// the requested location as the post-login target.
func (g *Guards) AuthenticatedPage() drift.HandlerFunc {
	return func(c *drift.Context) {
		g.page(c, "auth", Authenticated(middleware.GetSession(c)))
	}
}

// AdminPage sends visitors without the admin role home with the
// access-denied notice. Anonymous visitors go to the login page first.
func (g *Guards) AdminPage() drift.HandlerFunc {
	return func(c *drift.Context) {
		s := middleware.GetSession(c)
		g.page(c, "admin", EvaluateAdmin(c.Request.Context(), g.roles, s))
	}
}

func (g *Guards) AuthenticatedAPI() drift.HandlerFunc {
	return func(c *drift.Context) {
		g.api(c, "auth", Authenticated(middleware.GetSession(c)))
	}
}

func (g *Guards) AdminAPI() drift.HandlerFunc {
	return func(c *drift.Context) {
		s := middleware.GetSession(c)
		g.api(c, "admin", EvaluateAdmin(c.Request.Context(), g.roles, s))
	}
}

func (g *Guards) page(c *drift.Context, guard string, d Decision) {
	g.record(c, guard, d)
	switch d {
	case Allow:
		c.Next()
	case RedirectLogin:
		redirect(c, LoginURL(c.Request.URL.RequestURI()))
	case Deny:
		redirect(c, AccessDeniedURL())
	default:
		c.Response.Header().Set("Retry-After", retryAfterSeconds)
		c.Response.Header().Set("Cache-Control", "no-store")
		g.loading(c)
		c.Abort()
	}
}

func (g *Guards) api(c *drift.Context, guard string, d Decision) {
	g.record(c, guard, d)
	switch d {
	case Allow:
		c.Next()
	case RedirectLogin:
		c.Unauthorized("authentication required")
	case Deny:
		c.Forbidden("admin access required")
	default:
		c.Response.Header().Set("Retry-After", retryAfterSeconds)
		_ = c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:     "identity not resolved yet",
			Retryable: true,
		})
		c.Abort()
	}
}

func (g *Guards) record(c *drift.Context, guard string, d Decision) {
	g.metrics.GuardDecision(guard, d.String())
	if d == Allow {
		return
	}
	entry := g.log.WithFields(logrus.Fields{
		"guard":    guard,
		"decision": d.String(),
		"path":     c.Request.URL.Path,
	})
	if uid := middleware.GetUserID(c); uid != uuid.Nil {
		entry = entry.WithField("user_id", uid)
	}
	if d == Deny {
		entry.Info("access denied")
	} else {
		entry.Debug("access held")
	}
}

func redirect(c *drift.Context, location string) {
	c.Response.Header().Set("Location", location)
	c.Response.Header().Set("Cache-Control", "no-store")
	c.Response.WriteHeader(http.StatusSeeOther)
	c.Abort()
}
