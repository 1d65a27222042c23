package services

import (
	"strings"

	"github.com/dimitrije/reclama-api/internal/models"
)

// StatusAll selects every status in a filter.
const StatusAll models.ReportStatus = "all"

// FilterReports keeps reports matching status (empty or StatusAll matches
// every status) and term.
// The term is a case-insensitive substring of the title, description,
// location or category; includeOwner also matches the owner name. Order is
// preserved.
func FilterReports(reports []models.Report, status models.ReportStatus, term string, includeOwner bool) []models.Report {
	needle := strings.ToLower(strings.TrimSpace(term))
	out := make([]models.Report, 0, len(reports))
	for _, r := range reports {
		if status != "" && status != StatusAll && r.Status != status {
			continue
		}
		if needle != "" && !matchesTerm(&r, needle, includeOwner) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesTerm(r *models.Report, needle string, includeOwner bool) bool {
	fields := []string{r.Description, r.Location, r.Category}
	if r.Title != nil {
		fields = append(fields, *r.Title)
	}
	if includeOwner && r.OwnerName != nil {
		fields = append(fields, *r.OwnerName)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// CountByStatus tallies reports per status. Every status has an entry.
func CountByStatus(reports []models.Report) map[models.ReportStatus]int {
	counts := make(map[models.ReportStatus]int, len(models.ReportStatuses))
	for _, st := range models.ReportStatuses {
		counts[st] = 0
	}
	for _, r := range reports {
		counts[r.Status]++
	}
	return counts
}
