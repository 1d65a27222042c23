package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/middleware"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/services"
	"github.com/dimitrije/reclama-api/internal/storage"
	"github.com/dimitrije/reclama-api/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/sirupsen/logrus"
)

// maxFormMemory bounds the multipart form kept in memory; the image limit is
// enforced separately.
const maxFormMemory = storage.MaxImageSize + 1<<20

type ReportHandler struct {
	reportService ReportServiceInterface
	gate          SessionGateInterface
	log           logrus.FieldLogger
}

func NewReportHandler(reportService ReportServiceInterface, gate SessionGateInterface, log logrus.FieldLogger) *ReportHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &ReportHandler{reportService: reportService, gate: gate, log: log}
}

// Create accepts either a JSON body or a multipart form with an optional
// "image" file. The route must not run the body parser.
func (h *ReportHandler) Create(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}

	in, err := DecodeCreateReport(c.Request)
	if err != nil {
		respondError(c, h.log, err, "invalid request body")
		return
	}
	in.OwnerID = userID

	result, err := h.reportService.Create(c.Request.Context(), *in)
	if err != nil {
		respondError(c, h.log, err, "failed to create report")
		return
	}

	_ = c.JSON(http.StatusCreated, dto.CreateReportResponse{
		Report:   toReportResponse(result.Report),
		Warnings: result.Warnings,
	})
}

// DecodeCreateReport reads a report submission from a JSON body or a
// multipart/urlencoded form. An oversized or unreadable image is a validation
// error on the "image" field; an image of a type the store cannot take is
// passed on and ends as an upload warning.
func DecodeCreateReport(r *http.Request) (*services.CreateReportInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		var req dto.CreateReportRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			return nil, &services.ValidationError{Fields: map[string]string{"body": "JSON inválido."}}
		}
		return &services.CreateReportInput{
			Category:    req.Category,
			Title:       req.Title,
			Description: req.Description,
			Location:    req.Location,
			Latitude:    req.Latitude,
			Longitude:   req.Longitude,
		}, nil
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, &services.ValidationError{Fields: map[string]string{"body": "Formulário inválido."}}
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, &services.ValidationError{Fields: map[string]string{"body": "Formulário inválido."}}
	}

	in := &services.CreateReportInput{
		Category:    r.FormValue("category"),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Location:    r.FormValue("location"),
	}

	fields := map[string]string{}
	if lat, ok := parseCoordinate(r.FormValue("latitude")); ok {
		in.Latitude = lat
	} else {
		fields["latitude"] = "Latitude inválida."
	}
	if lng, ok := parseCoordinate(r.FormValue("longitude")); ok {
		in.Longitude = lng
	} else {
		fields["longitude"] = "Longitude inválida."
	}

	if r.MultipartForm != nil {
		if file, header, err := r.FormFile("image"); err == nil {
			defer file.Close()
			if header.Size > 0 {
				img, err := storage.ReadImage(file)
				switch {
				case errors.Is(err, storage.ErrTooLarge):
					fields["image"] = "A imagem deve ter no máximo 5 MB."
				case err != nil:
					fields["image"] = "Não foi possível ler a imagem."
				default:
					in.Image = img
				}
			}
		}
	}

	if len(fields) > 0 {
		return nil, &services.ValidationError{Fields: fields}
	}
	return in, nil
}

func parseCoordinate(v string) (*float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil {
		return nil, false
	}
	return &f, true
}

// Mine lists the caller's own reports.
func (h *ReportHandler) Mine(c *drift.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		c.Unauthorized("not authenticated")
		return
	}
	h.list(c, services.OwnedBy(userID))
}

// AdminList lists every report. Callers are checked by the admin guard.
func (h *ReportHandler) AdminList(c *drift.Context) {
	h.list(c, services.AllReports())
}

func (h *ReportHandler) list(c *drift.Context, scope services.ReportScope) {
	filter, err := ParseReportFilter(c.QueryParam("status"), c.QueryParam("q"))
	if err != nil {
		respondError(c, h.log, err, "invalid filter")
		return
	}

	list, err := h.reportService.List(c.Request.Context(), scope, filter)
	if err != nil {
		respondError(c, h.log, err, "failed to list reports")
		return
	}

	_ = c.JSON(http.StatusOK, toReportListResponse(list))
}

// ParseReportFilter accepts an empty status or "all" for every status.
func ParseReportFilter(status, term string) (services.ReportFilter, error) {
	filter := services.ReportFilter{Term: term}
	status = strings.TrimSpace(status)
	if status == "" || models.ReportStatus(status) == services.StatusAll {
		return filter, nil
	}
	st, err := models.ParseReportStatus(status)
	if err != nil {
		return filter, &services.ValidationError{Fields: map[string]string{"status": "Status inválido."}}
	}
	filter.Status = st
	return filter, nil
}

func toReportListResponse(list *services.ReportList) dto.ReportListResponse {
	resp := dto.ReportListResponse{
		Reports: make([]dto.ReportResponse, len(list.Reports)),
		Counts:  make(map[string]int, len(list.Counts)),
		Total:   list.Total,
	}
	for i := range list.Reports {
		resp.Reports[i] = toReportResponse(&list.Reports[i])
	}
	for st, n := range list.Counts {
		resp.Counts[string(st)] = n
	}
	return resp
}

// Get returns one report. Quick actions are included only for administrators.
func (h *ReportHandler) Get(c *drift.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.BadRequest("invalid report ID")
		return
	}

	detail, err := h.reportService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "failed to get report")
		return
	}

	resp := toReportResponse(detail.Report)
	owner := detail.OwnerName
	resp.OwnerName = &owner
	if h.isAdmin(c) {
		resp.QuickActions = statusStrings(detail.QuickActions)
	}

	_ = c.JSON(http.StatusOK, resp)
}

func (h *ReportHandler) isAdmin(c *drift.Context) bool {
	s := middleware.GetSession(c)
	if s.UserID() == uuid.Nil || h.gate == nil {
		return false
	}
	check, err := h.gate.IsAdmin(c.Request.Context(), s)
	return err == nil && check.IsAdmin && check.UserID == s.UserID()
}

// UpdateStatus is reachable only through the admin guard.
func (h *ReportHandler) UpdateStatus(c *drift.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.BadRequest("invalid report ID")
		return
	}

	var req dto.UpdateStatusRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	status, err := models.ParseReportStatus(req.Status)
	if err != nil {
		respondError(c, h.log, &services.ValidationError{Fields: map[string]string{"status": "Status inválido."}}, "invalid status")
		return
	}

	report, err := h.reportService.UpdateStatus(c.Request.Context(), id, status)
	if err != nil {
		respondError(c, h.log, err, "failed to update report status")
		return
	}

	h.log.WithFields(logrus.Fields{
		"report_id": id,
		"status":    status,
		"admin_id":  middleware.GetUserID(c),
	}).Info("status changed by admin")

	resp := toReportResponse(report)
	resp.QuickActions = statusStrings(report.Status.QuickActions())
	_ = c.JSON(http.StatusOK, resp)
}

func (h *ReportHandler) Categories(c *drift.Context) {
	_ = c.JSON(http.StatusOK, models.Categories)
}
