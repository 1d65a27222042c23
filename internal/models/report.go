package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	StatusPending    ReportStatus = "pending"
	StatusInProgress ReportStatus = "in-progress"
	StatusResolved   ReportStatus = "resolved"
	StatusRejected   ReportStatus = "rejected"
)

// ReportStatuses lists every status in workflow order.
var ReportStatuses = []ReportStatus{StatusPending, StatusInProgress, StatusResolved, StatusRejected}

var statusLabels = map[ReportStatus]string{
	StatusPending:    "Pendente",
	StatusInProgress: "Em Análise",
	StatusResolved:   "Resolvida",
	StatusRejected:   "Rejeitada",
}

// quickActions is the suggested next-step table shown to administrators.
var quickActions = map[ReportStatus][]ReportStatus{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusResolved, StatusRejected},
}

func ParseReportStatus(s string) (ReportStatus, error) {
	st := ReportStatus(s)
	if _, ok := statusLabels[st]; !ok {
		return "", fmt.Errorf("invalid report status: %q", s)
	}
	return st, nil
}

func (s ReportStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s ReportStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// QuickActions returns the suggested next statuses. Terminal statuses have none.
func (s ReportStatus) QuickActions() []ReportStatus {
	return quickActions[s]
}

// CanTransitionTo reports whether next is one of the suggested quick actions.
// Re-applying the current status is always allowed.
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	if s == next {
		return true
	}
	for _, candidate := range quickActions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

type Report struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Title       *string      `json:"title,omitempty"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Location    string       `json:"location"`
	Latitude    *float64     `json:"latitude,omitempty"`
	Longitude   *float64     `json:"longitude,omitempty"`
	Status      ReportStatus `json:"status"`
	ImageURL    *string      `json:"image_url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	// OwnerName is the owner's profile name when the listing joined it.
	OwnerName *string `json:"owner_name,omitempty"`
}

const UntitledReport = "Denúncia sem título"

func (r *Report) DisplayTitle() string {
	if r.Title == nil || *r.Title == "" {
		return UntitledReport
	}
	return *r.Title
}
