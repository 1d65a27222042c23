package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/dimitrije/reclama-api/internal/guard"
	"github.com/dimitrije/reclama-api/internal/identity"
	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/middleware"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/dimitrije/reclama-api/internal/web"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/sirupsen/logrus"
)

// PageHandler serves the server-rendered pages. Guards on the routes decide
// who reaches them; handlers only read the session.
type PageHandler struct {
	gate          SessionGateInterface
	reportService ReportServiceInterface
	views         *web.Renderer
	cookies       CookieConfig
	postLoginURL  string
	log           logrus.FieldLogger
}

func NewPageHandler(
	gate SessionGateInterface,
	reportService ReportServiceInterface,
	views *web.Renderer,
	cookies CookieConfig,
	postLoginURL string,
	log logrus.FieldLogger,
) *PageHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &PageHandler{
		gate:          gate,
		reportService: reportService,
		views:         views,
		cookies:       cookies,
		postLoginURL:  guard.SafeNext(postLoginURL),
		log:           log,
	}
}

func (h *PageHandler) render(c *drift.Context, status int, name string, p web.Page) {
	if p.Viewer == nil {
		p.Viewer = h.viewer(c)
	}
	html, err := h.views.RenderString(name, p)
	if err != nil {
		h.log.WithError(err).WithField("page", name).Error("failed to render page")
		c.InternalServerError("failed to render page")
		return
	}
	_ = c.HTML(status, html)
}

func (h *PageHandler) viewer(c *drift.Context) *web.Viewer {
	s := middleware.GetSession(c)
	if s.State() != identity.Authenticated {
		return nil
	}
	v := &web.Viewer{}
	if name := s.DisplayName(); name != nil {
		v.Name = *name
	}
	v.IsAdmin = h.isAdmin(c, s)
	return v
}

func (h *PageHandler) isAdmin(c *drift.Context, s *identity.Session) bool {
	check, err := h.gate.IsAdmin(c.Request.Context(), s)
	return err == nil && check.IsAdmin && check.UserID == s.UserID()
}

func (h *PageHandler) renderError(c *drift.Context, err error, fallback string) {
	switch services.KindOf(err) {
	case services.KindNotFound:
		h.render(c, http.StatusNotFound, "error", web.Page{Title: "Denúncia não encontrada"})
	case services.KindConflict, services.KindForbidden:
		h.render(c, http.StatusConflict, "error", web.Page{Title: "Operação não permitida para esta denúncia."})
	case services.KindConnectivity:
		h.log.WithError(err).WithField("path", c.Request.URL.Path).Warn("backend unavailable")
		c.Response.Header().Set("Retry-After", "5")
		h.render(c, http.StatusServiceUnavailable, "error", web.Page{
			Title: "Serviço temporariamente indisponível. Tente novamente em instantes.",
		})
	default:
		h.log.WithError(err).WithField("path", c.Request.URL.Path).Error(fallback)
		h.render(c, http.StatusInternalServerError, "error", web.Page{Title: "Erro inesperado. Tente novamente."})
	}
}

// Loading is the view shown while the session is still being resolved.
func (h *PageHandler) Loading(c *drift.Context) {
	html, err := h.views.RenderString("loading", web.Page{Title: "Carregando...", Refresh: true})
	if err != nil {
		h.log.WithError(err).Error("failed to render loading page")
		c.InternalServerError("failed to render page")
		return
	}
	_ = c.HTML(http.StatusServiceUnavailable, html)
}

// NotFound serves paths that match no page.
func (h *PageHandler) NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		if err := h.views.Render(w, "error", web.Page{Title: "Página não encontrada"}); err != nil {
			h.log.WithError(err).WithField("path", r.URL.Path).Error("failed to render not found page")
		}
	})
}

func (h *PageHandler) Home(c *drift.Context) {
	h.render(c, http.StatusOK, "home", web.Page{
		Notice: c.QueryParam("notice"),
		Data:   web.HomeData{Categories: models.Categories},
	})
}

func (h *PageHandler) Terms(c *drift.Context) {
	h.render(c, http.StatusOK, "terms", web.Page{Title: "Termos de uso"})
}

// LoginForm shows the sign-in form. A signed-in visitor goes straight to the
// requested page.
func (h *PageHandler) LoginForm(c *drift.Context) {
	next := c.QueryParam("next")
	if middleware.GetSession(c).State() == identity.Authenticated {
		seeOther(c, h.afterLogin(next))
		return
	}
	h.render(c, http.StatusOK, "login", web.Page{
		Title:  "Entrar",
		Notice: c.QueryParam("notice"),
		Error:  c.QueryParam("error"),
		Data:   web.LoginData{Next: guard.OptionalNext(next)},
	})
}

func (h *PageHandler) Login(c *drift.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.BadRequest("invalid form")
		return
	}
	next := c.Request.PostFormValue("next")
	email := strings.TrimSpace(c.Request.PostFormValue("email"))

	session, err := h.gate.SignIn(c.Request.Context(), middleware.GetSession(c), email, c.Request.PostFormValue("password"))
	if err != nil {
		status := http.StatusUnauthorized
		if services.KindOf(err) == services.KindConnectivity {
			status = http.StatusServiceUnavailable
		} else if services.KindOf(err) == services.KindValidation {
			status = http.StatusBadRequest
		}
		h.render(c, status, "login", web.Page{
			Title: "Entrar",
			Error: signInErrorMessage(err),
			Data:  web.LoginData{Next: guard.OptionalNext(next), Email: email},
		})
		return
	}

	h.cookies.setSession(c, session)
	seeOther(c, h.afterLogin(next))
}

func (h *PageHandler) afterLogin(next string) string {
	if next = guard.OptionalNext(next); next == "" {
		return h.postLoginURL
	}
	return next
}

// ProviderLogin sends the browser to the external provider's consent page.
func (h *PageHandler) ProviderLogin(c *drift.Context) {
	consentURL, err := h.gate.SignInWithExternalProvider(c.Param("provider"), guard.OptionalNext(c.QueryParam("next")))
	if err != nil {
		seeOther(c, guard.LoginPath+"?error="+url.QueryEscape("Provedor de login indisponível."))
		return
	}
	seeOther(c, consentURL)
}

func (h *PageHandler) RegisterForm(c *drift.Context) {
	h.render(c, http.StatusOK, "register", web.Page{Title: "Criar conta", Data: web.RegisterData{}})
}

// Register creates the account without signing in and sends the visitor to
// the login page, asking for email confirmation only when one was sent.
func (h *PageHandler) Register(c *drift.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.BadRequest("invalid form")
		return
	}
	data := web.RegisterData{
		Name:  strings.TrimSpace(c.Request.PostFormValue("name")),
		Email: strings.TrimSpace(c.Request.PostFormValue("email")),
	}

	msg, err := h.gate.Register(c.Request.Context(), data.Email, c.Request.PostFormValue("password"), data.Name)
	if err != nil {
		page := web.Page{Title: "Criar conta", Data: data}
		status := http.StatusBadRequest
		var ve *services.ValidationError
		switch {
		case errors.As(err, &ve):
			page.Fields = ve.Fields
			page.Error = "Verifique os dados informados."
		case errors.Is(err, services.ErrEmailTaken):
			status = http.StatusConflict
			page.Fields = map[string]string{"email": "Este email já está cadastrado."}
		case services.KindOf(err) == services.KindConnectivity:
			status = http.StatusServiceUnavailable
			page.Error = "Serviço temporariamente indisponível. Tente novamente."
		default:
			h.log.WithError(err).Error("failed to register")
			status = http.StatusInternalServerError
			page.Error = "Erro inesperado. Tente novamente."
		}
		h.render(c, status, "register", page)
		return
	}

	notice := "conta-criada"
	if msg == services.ConfirmationSentMessage {
		notice = "cadastro"
	}
	seeOther(c, guard.LoginPath+"?notice="+notice)
}

// Logout clears the session and returns home. It never fails for the caller.
func (h *PageHandler) Logout(c *drift.Context) {
	_ = h.gate.SignOut(c.Request.Context(), middleware.GetSession(c), middleware.RefreshToken(c))
	h.cookies.clearSession(c)
	seeOther(c, guard.HomePath+"?notice=sessao-encerrada")
}

func (h *PageHandler) ReportForm(c *drift.Context) {
	h.render(c, http.StatusOK, "report_problem", web.Page{
		Title: "Nova denúncia",
		Data:  web.ReportFormData{Categories: models.Categories},
	})
}

// SubmitReport creates a report from the form. A report stored without its
// image lands on the list with the success notice and a separate warning.
func (h *PageHandler) SubmitReport(c *drift.Context) {
	in, err := DecodeCreateReport(c.Request)
	if err == nil {
		in.OwnerID = middleware.GetUserID(c)
		var result *services.CreateReportResult
		result, err = h.reportService.Create(c.Request.Context(), *in)
		if err == nil {
			notice := "denuncia-enviada"
			if len(result.Warnings) > 0 {
				notice += ",imagem-nao-enviada"
			}
			seeOther(c, "/my-reports?notice="+notice)
			return
		}
	}

	var ve *services.ValidationError
	if !errors.As(err, &ve) {
		h.renderError(c, err, "failed to create report")
		return
	}

	h.render(c, http.StatusBadRequest, "report_problem", web.Page{
		Title:  "Nova denúncia",
		Error:  "Verifique os campos destacados.",
		Fields: ve.Fields,
		Data: web.ReportFormData{
			Categories:  models.Categories,
			Category:    c.Request.FormValue("category"),
			Title:       c.Request.FormValue("title"),
			Description: c.Request.FormValue("description"),
			Location:    c.Request.FormValue("location"),
			Latitude:    c.Request.FormValue("latitude"),
			Longitude:   c.Request.FormValue("longitude"),
		},
	})
}

func (h *PageHandler) MyReports(c *drift.Context) {
	h.reportList(c, "Minhas denúncias", services.OwnedBy(middleware.GetUserID(c)), false)
}

func (h *PageHandler) Admin(c *drift.Context) {
	h.reportList(c, "Painel administrativo", services.AllReports(), true)
}

func (h *PageHandler) reportList(c *drift.Context, title string, scope services.ReportScope, manage bool) {
	status := c.QueryParam("status")
	filter, err := ParseReportFilter(status, c.QueryParam("q"))
	if err != nil {
		status = ""
		filter = services.ReportFilter{Term: c.QueryParam("q")}
	}

	list, err := h.reportService.List(c.Request.Context(), scope, filter)
	if err != nil {
		h.renderError(c, err, "failed to list reports")
		return
	}

	resp := toReportListResponse(list)
	h.render(c, http.StatusOK, "reports", web.Page{
		Title:  title,
		Notice: c.QueryParam("notice"),
		Data: web.ReportListData{
			Reports:  resp.Reports,
			Statuses: web.StatusOptions(resp.Counts, status),
			Total:    resp.Total,
			Term:     filter.Term,
			Manage:   manage,
		},
	})
}

func (h *PageHandler) Report(c *drift.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.render(c, http.StatusNotFound, "error", web.Page{Title: "Denúncia não encontrada"})
		return
	}

	detail, err := h.reportService.Get(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err, "failed to get report")
		return
	}

	viewer := h.viewer(c)
	data := web.ReportDetailData{Report: toReportResponse(detail.Report)}
	owner := detail.OwnerName
	data.Report.OwnerName = &owner
	if viewer != nil && viewer.IsAdmin {
		data.QuickActions = web.ActionOptions(detail.QuickActions)
		data.StatusChoices = web.StatusOptions(nil, data.Report.Status)
	}

	h.render(c, http.StatusOK, "report", web.Page{
		Title:  data.Report.Title,
		Viewer: viewer,
		Notice: c.QueryParam("notice"),
		Data:   data,
	})
}

// UpdateStatus applies a status chosen on the report page or the dashboard.
// Any status may be set; the form's "return" field picks the page to go back to.
func (h *PageHandler) UpdateStatus(c *drift.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.render(c, http.StatusNotFound, "error", web.Page{Title: "Denúncia não encontrada"})
		return
	}
	if err := c.Request.ParseForm(); err != nil {
		c.BadRequest("invalid form")
		return
	}

	status, err := models.ParseReportStatus(c.Request.PostFormValue("status"))
	if err != nil {
		c.BadRequest("invalid status")
		return
	}

	if _, err := h.reportService.UpdateStatus(c.Request.Context(), id, status); err != nil {
		h.renderError(c, err, "failed to update report status")
		return
	}

	h.log.WithFields(logrus.Fields{
		"report_id": id,
		"status":    status,
		"admin_id":  middleware.GetUserID(c),
	}).Info("status changed by admin")

	target := guard.OptionalNext(c.Request.PostFormValue("return"))
	if target == "" {
		target = "/report/" + id.String()
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	seeOther(c, target+sep+"notice=status-atualizado")
}
