package web

import (
	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/dimitrije/reclama-api/pkg/dto"
)

type HomeData struct {
	Categories []models.Category
}

type LoginData struct {
	Next  string
	Email string
}

type RegisterData struct {
	Name  string
	Email string
}

type ReportFormData struct {
	Categories  []models.Category
	Category    string
	Title       string
	Description string
	Location    string
	Latitude    string
	Longitude   string
}

// StatusOption is one entry of the status filter or a quick-action button.
type StatusOption struct {
	Value    string
	Label    string
	Count    int
	Selected bool
}

type ReportListData struct {
	Reports  []dto.ReportResponse
	Statuses []StatusOption
	Total    int
	Term     string

	// Manage adds a status selector to every card. Admin dashboard only.
	Manage bool
}

type ReportDetailData struct {
	Report       dto.ReportResponse
	QuickActions []StatusOption

	// StatusChoices is the full status selector, set for administrators.
	StatusChoices []StatusOption
}

// StatusOptions builds the filter entries in workflow order.
func StatusOptions(counts map[string]int, selected string) []StatusOption {
	out := make([]StatusOption, len(models.ReportStatuses))
	for i, st := range models.ReportStatuses {
		out[i] = StatusOption{
			Value:    string(st),
			Label:    st.Label(),
			Count:    counts[string(st)],
			Selected: string(st) == selected,
		}
	}
	return out
}

// ActionOptions builds quick-action buttons.
func ActionOptions(statuses []models.ReportStatus) []StatusOption {
	out := make([]StatusOption, len(statuses))
	for i, st := range statuses {
		out[i] = StatusOption{Value: string(st), Label: "Marcar como " + st.Label()}
	}
	return out
}
