// Package server wires handlers, guards and middleware into the HTTP routes.
package server

import (
	"net/http"

	"github.com/dimitrije/reclama-api/internal/guard"
	"github.com/dimitrije/reclama-api/internal/handlers"
	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/metrics"
	"github.com/dimitrije/reclama-api/internal/middleware"
	"github.com/dimitrije/reclama-api/internal/web"
	"github.com/m1z23r/drift/pkg/drift"
	driftmw "github.com/m1z23r/drift/pkg/middleware"
	"github.com/sirupsen/logrus"
)

// SessionGate is everything the routes need from the identity gate.
type SessionGate interface {
	middleware.SessionResolver
	handlers.SessionGateInterface
}

type Deps struct {
	Gate    SessionGate
	Auth    handlers.AuthServiceInterface
	Reports handlers.ReportServiceInterface
	Roles   handlers.RoleServiceInterface
	Hub     handlers.HubInterface
	Views   *web.Renderer

	Cookies      handlers.CookieConfig
	PostLoginURL string
	Production   bool

	// Uploads serves stored report images under /uploads/. Nil when images
	// live on a remote store.
	Uploads http.Handler
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
}

// pagePatterns are the paths handed to the drift app. Anything else gets the
// not-found page.
var pagePatterns = []string{
	"/api/",
	"/{$}",
	"/terms",
	"/login",
	"/login/",
	"/register",
	"/logout",
	"/confirm-email",
	"/report/",
	"/report-problem",
	"/my-reports",
	"/admin",
	"/admin/",
}

// New returns the complete HTTP handler: drift routes for the API and pages,
// plus /metrics and /uploads/, wrapped in request logging.
func New(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	if d.Views == nil {
		d.Views = web.MustNew()
	}

	authHandler := handlers.NewAuthHandler(d.Gate, d.Auth, d.Cookies, d.PostLoginURL, d.Log)
	userHandler := handlers.NewUserHandler(d.Auth, d.Log)
	sessionHandler := handlers.NewSessionHandler(d.Gate, d.Hub, d.Log)
	reportHandler := handlers.NewReportHandler(d.Reports, d.Gate, d.Log)
	adminHandler := handlers.NewAdminHandler(d.Roles, d.Log)
	pageHandler := handlers.NewPageHandler(d.Gate, d.Reports, d.Views, d.Cookies, d.PostLoginURL, d.Log)

	guards := guard.New(d.Gate, guard.Options{
		Loading: pageHandler.Loading,
		Log:     d.Log,
		Metrics: d.Metrics,
	})

	app := drift.New()

	if d.Production {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(driftmw.Recovery())
	app.Use(driftmw.CORSWithConfig(driftmw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.ClientIDHeader},
		MaxAge:       86400,
	}))
	app.Use(middleware.Identity(d.Gate, d.Cookies.Secure))

	api := app.Group("/api/v1")

	public := api.Group("")
	public.Use(driftmw.BodyParser())

	public.Get("/health", func(c *drift.Context) {
		_ = c.JSON(200, map[string]string{"status": "ok"})
	})
	public.Get("/categories", reportHandler.Categories)
	public.Get("/session", sessionHandler.Get)
	public.Get("/reports/:id", reportHandler.Get)

	auth := public.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.RefreshToken)
	auth.Post("/logout", authHandler.Logout)
	auth.Get("/:provider/consent", authHandler.GetConsentURL)
	auth.Get("/:provider/callback", authHandler.Callback)

	protected := api.Group("")
	protected.Use(guards.AuthenticatedAPI())
	protected.Use(driftmw.BodyParser())

	protected.Post("/auth/logout-all", authHandler.LogoutAll)
	protected.Get("/users/me", userHandler.GetMe)
	protected.Patch("/users/me", userHandler.UpdateMe)
	protected.Get("/users/me/reports", reportHandler.Mine)
	protected.Get("/session/events", sessionHandler.Events)
	protected.Get("/session/ws", sessionHandler.Socket)

	// Report submission decodes its own body: JSON or multipart with an image.
	uploads := api.Group("")
	uploads.Use(guards.AuthenticatedAPI())
	uploads.Post("/reports", reportHandler.Create)

	admin := api.Group("/admin")
	admin.Use(guards.AdminAPI())
	admin.Use(driftmw.BodyParser())

	admin.Get("/reports", reportHandler.AdminList)
	admin.Patch("/reports/:id/status", reportHandler.UpdateStatus)
	admin.Post("/roles", adminHandler.GrantRole)

	app.Get("/", pageHandler.Home)
	app.Get("/terms", pageHandler.Terms)
	app.Get("/login", pageHandler.LoginForm)
	app.Post("/login", pageHandler.Login)
	app.Get("/login/:provider", pageHandler.ProviderLogin)
	app.Get("/register", pageHandler.RegisterForm)
	app.Post("/register", pageHandler.Register)
	app.Post("/logout", pageHandler.Logout)
	app.Get("/confirm-email", authHandler.ConfirmEmail)
	app.Get("/report/:id", pageHandler.Report)

	authPages := app.Group("")
	authPages.Use(guards.AuthenticatedPage())
	authPages.Get("/report-problem", pageHandler.ReportForm)
	authPages.Post("/report-problem", pageHandler.SubmitReport)
	authPages.Get("/my-reports", pageHandler.MyReports)

	adminPages := app.Group("")
	adminPages.Use(guards.AdminPage())
	adminPages.Get("/admin", pageHandler.Admin)
	adminPages.Post("/admin/reports/:id/status", pageHandler.UpdateStatus)

	mux := http.NewServeMux()
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics.Handler())
	}
	if d.Uploads != nil {
		mux.Handle("/uploads/", http.StripPrefix("/uploads/", d.Uploads))
	}
	for _, pattern := range pagePatterns {
		mux.Handle(pattern, app)
	}
	mux.Handle("/", pageHandler.NotFound())

	return middleware.Instrument(mux, d.Log, d.Metrics)
}
