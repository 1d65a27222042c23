package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dimitrije/reclama-api/internal/database"
	"github.com/dimitrije/reclama-api/internal/logging"
	"github.com/dimitrije/reclama-api/internal/metrics"
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/internal/retry"
	"github.com/dimitrije/reclama-api/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// UnknownOwner is shown when a report's owner name cannot be resolved.
const UnknownOwner = "Usuário não identificado"

// WarningImageUploadFailed is returned with a report created without its
// image.
const WarningImageUploadFailed = "image_upload_failed"

const reportColumns = `r.id, r.user_id, r.title, r.description, r.category, r.location,
	r.latitude, r.longitude, r.status, r.image_url, r.created_at, r.updated_at`

type ProfileNameReader interface {
	GetName(ctx context.Context, userID uuid.UUID) (*string, error)
}

type ReportOptions struct {
	// Reads is the retry policy for listings and detail reads. The zero
	// value selects retry.Reads.
	Reads             retry.Policy
	StrictTransitions bool
	Log               logrus.FieldLogger
	Metrics           *metrics.Metrics
}

// ReportService implements the report lifecycle: creation with an optional
// image, scoped listings, detail reads and administrative status updates.
type ReportService struct {
	db        *database.DB
	store     storage.ObjectStore
	profiles  ProfileNameReader
	validator *Validator
	reads     retry.Policy
	strict    bool
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
}

func NewReportService(db *database.DB, store storage.ObjectStore, profiles ProfileNameReader, opts ReportOptions) *ReportService {
	s := &ReportService{
		db:        db,
		store:     store,
		profiles:  profiles,
		validator: NewValidator(),
		reads:     opts.Reads,
		strict:    opts.StrictTransitions,
		log:       opts.Log,
		metrics:   opts.Metrics,
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.reads.MaxAttempts == 0 {
		s.reads = retry.Reads(IsTransient)
	}
	if s.reads.Retryable == nil {
		s.reads.Retryable = IsTransient
	}
	return s
}

func (s *ReportService) readPolicy(op string) retry.Policy {
	p := s.reads
	p.OnRetry = func(err error, wait time.Duration) {
		s.metrics.ReadRetried(op)
		s.log.WithError(err).WithFields(logrus.Fields{"operation": op, "wait": wait.String()}).
			Warn("store read failed, retrying")
	}
	return p
}

type CreateReportInput struct {
	OwnerID     uuid.UUID      `json:"owner_id" validate:"required"`
	Category    string         `json:"category" validate:"notblank,category"`
	Title       string         `json:"title" validate:"notblank,max=255"`
	Description string         `json:"description" validate:"max=5000"`
	Location    string         `json:"location" validate:"notblank"`
	Latitude    *float64       `json:"latitude" validate:"omitempty,latitude"`
	Longitude   *float64       `json:"longitude" validate:"omitempty,longitude"`
	Image       *storage.Image `json:"-"`
}

type CreateReportResult struct {
	Report   *models.Report
	Warnings []string
}

// Create validates the input, uploads the image if one is supplied and
// inserts the report as pending. A failed upload does not fail creation; the
// report is stored without an image and the result carries a warning.
func (s *ReportService) Create(ctx context.Context, in CreateReportInput) (*CreateReportResult, error) {
	if in.OwnerID == uuid.Nil {
		return nil, ErrUnauthorized
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	category, _ := models.LookupCategory(in.Category)
	result := &CreateReportResult{}
	imageOutcome := "none"

	var imageURL *string
	if in.Image != nil {
		url, err := s.uploadImage(ctx, in.OwnerID, in.Image)
		if err != nil {
			s.log.WithError(err).WithField("user_id", in.OwnerID).Warn("report image upload failed, continuing without image")
			result.Warnings = append(result.Warnings, WarningImageUploadFailed)
			imageOutcome = "failed"
		} else {
			imageURL = &url
			imageOutcome = "stored"
		}
	}

	report, err := scanReport(s.db.Pool.QueryRow(ctx, `
		INSERT INTO reports AS r (user_id, title, description, category, location, latitude, longitude, status, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+reportColumns,
		in.OwnerID, strings.TrimSpace(in.Title), strings.TrimSpace(in.Description), category.Name,
		strings.TrimSpace(in.Location), in.Latitude, in.Longitude, models.StatusPending, imageURL,
	), s.log)
	if isPgCode(err, fkViolation) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, classify("create report", err, nil)
	}

	s.metrics.ReportCreated(imageOutcome)
	s.log.WithFields(logrus.Fields{
		"report_id": report.ID,
		"user_id":   report.UserID,
		"category":  report.Category,
		"image":     imageOutcome,
	}).Info("report created")

	result.Report = report
	return result, nil
}

func (s *ReportService) uploadImage(ctx context.Context, ownerID uuid.UUID, img *storage.Image) (string, error) {
	if s.store == nil {
		return "", fmt.Errorf("%w: no object store configured", ErrImageUpload)
	}
	key, err := storage.ImageKey(ownerID, img.ContentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrImageUpload, err)
	}
	if err := s.store.Put(ctx, key, bytes.NewReader(img.Data), img.ContentType); err != nil {
		return "", fmt.Errorf("%w: %w", ErrImageUpload, err)
	}
	return s.store.URL(key), nil
}

// ReportScope selects which reports a listing covers.
type ReportScope struct {
	All     bool
	OwnerID uuid.UUID
}

func AllReports() ReportScope { return ReportScope{All: true} }

func OwnedBy(userID uuid.UUID) ReportScope { return ReportScope{OwnerID: userID} }

type ReportFilter struct {
	// Status is empty for every status.
	Status models.ReportStatus
	Term   string
}

type ReportList struct {
	Reports []models.Report
	// Counts covers the whole scope before filtering.
	Counts map[models.ReportStatus]int
	Total  int
}

// List returns the scope's reports newest first, filtered in memory. Reads
// are retried on connectivity errors.
func (s *ReportService) List(ctx context.Context, scope ReportScope, filter ReportFilter) (*ReportList, error) {
	if !scope.All && scope.OwnerID == uuid.Nil {
		return nil, ErrUnauthorized
	}

	reports, err := retry.Value(ctx, s.readPolicy("list_reports"), func(ctx context.Context) ([]models.Report, error) {
		return s.queryReports(ctx, scope)
	})
	if err != nil {
		return nil, err
	}

	return &ReportList{
		Reports: FilterReports(reports, filter.Status, filter.Term, scope.All),
		Counts:  CountByStatus(reports),
		Total:   len(reports),
	}, nil
}

func (s *ReportService) queryReports(ctx context.Context, scope ReportScope) ([]models.Report, error) {
	query := `SELECT ` + reportColumns + `, p.name
		FROM reports r
		LEFT JOIN profiles p ON p.id = r.user_id`
	var args []any
	if !scope.All {
		query += ` WHERE r.user_id = $1`
		args = append(args, scope.OwnerID)
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list reports", err, nil)
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		var ownerName *string
		r, err := scanReport(rows, s.log, &ownerName)
		if err != nil {
			return nil, classify("scan report", err, nil)
		}
		r.OwnerName = ownerName
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list reports", err, nil)
	}
	return reports, nil
}

type ReportDetail struct {
	Report       *models.Report
	OwnerName    string
	QuickActions []models.ReportStatus
}

// Get returns one report. A failed owner-name lookup degrades to
// UnknownOwner instead of failing the read.
func (s *ReportService) Get(ctx context.Context, id uuid.UUID) (*ReportDetail, error) {
	report, err := retry.Value(ctx, s.readPolicy("get_report"), func(ctx context.Context) (*models.Report, error) {
		r, err := scanReport(s.db.Pool.QueryRow(ctx, `
			SELECT `+reportColumns+` FROM reports r WHERE r.id = $1
		`, id), s.log)
		if err != nil {
			return nil, classify("get report", err, ErrReportNotFound)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}

	detail := &ReportDetail{
		Report:       report,
		OwnerName:    UnknownOwner,
		QuickActions: report.Status.QuickActions(),
	}

	if s.profiles != nil {
		name, err := s.profiles.GetName(ctx, report.UserID)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("report_id", id).Warn("owner name lookup failed")
		case name != nil:
			detail.OwnerName = *name
		}
	}

	return detail, nil
}

// UpdateStatus sets a new status and stamps updated_at. Concurrent updates
// resolve last-write-wins. It is never retried. With strict transitions only
// the quick-action table is accepted.
func (s *ReportService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReportStatus) (*models.Report, error) {
	if !status.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"status": "Status inválido."}}
	}

	query := `
		UPDATE reports AS r SET status = $1, updated_at = GREATEST(NOW(), r.created_at)
		WHERE r.id = $2`
	args := []any{status, id}
	if s.strict {
		query += ` AND r.status = ANY($3)`
		args = append(args, predecessors(status))
	}
	query += `
		RETURNING ` + reportColumns

	report, err := scanReport(s.db.Pool.QueryRow(ctx, query, args...), s.log)
	if errors.Is(err, pgx.ErrNoRows) && s.strict {
		return nil, s.explainMissingUpdate(ctx, id)
	}
	if err != nil {
		return nil, classify("update report status", err, ErrReportNotFound)
	}

	s.metrics.StatusUpdated(string(status))
	s.log.WithFields(logrus.Fields{"report_id": id, "status": status}).Info("report status updated")
	return report, nil
}

func (s *ReportService) explainMissingUpdate(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM reports WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return classify("check report", err, nil)
	}
	if !exists {
		return ErrReportNotFound
	}
	return ErrTransitionNotAllowed
}

func predecessors(target models.ReportStatus) []string {
	var out []string
	for _, st := range models.ReportStatuses {
		if st.CanTransitionTo(target) {
			out = append(out, string(st))
		}
	}
	return out
}

func scanReport(row pgx.Row, log logrus.FieldLogger, extra ...any) (*models.Report, error) {
	var r models.Report
	var status string
	dest := []any{
		&r.ID, &r.UserID, &r.Title, &r.Description, &r.Category, &r.Location,
		&r.Latitude, &r.Longitude, &status, &r.ImageURL, &r.CreatedAt, &r.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	st, err := models.ParseReportStatus(status)
	if err != nil {
		log.WithFields(logrus.Fields{"report_id": r.ID, "status": status}).
			Warn("unknown stored report status, treating as pending")
		st = models.StatusPending
	}
	r.Status = st
	return &r, nil
}
