package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReportStatus(t *testing.T) {
	for _, s := range ReportStatuses {
		got, err := ParseReportStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseReportStatus("archived")
	assert.Error(t, err)

	_, err = ParseReportStatus("")
	assert.Error(t, err)
}

func TestReportStatus_QuickActions(t *testing.T) {
	assert.Equal(t, []ReportStatus{StatusInProgress}, StatusPending.QuickActions())
	assert.Equal(t, []ReportStatus{StatusResolved, StatusRejected}, StatusInProgress.QuickActions())
	assert.Empty(t, StatusResolved.QuickActions())
	assert.Empty(t, StatusRejected.QuickActions())
}

func TestReportStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusInProgress))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusRejected))
	assert.True(t, StatusResolved.CanTransitionTo(StatusResolved))
	assert.False(t, StatusPending.CanTransitionTo(StatusResolved))
	assert.False(t, StatusResolved.CanTransitionTo(StatusPending))
}

func TestReportStatus_Label(t *testing.T) {
	assert.Equal(t, "Pendente", StatusPending.Label())
	assert.Equal(t, "Em Análise", StatusInProgress.Label())
	assert.Equal(t, "Resolvida", StatusResolved.Label())
	assert.Equal(t, "Rejeitada", StatusRejected.Label())
}

func TestReport_DisplayTitle(t *testing.T) {
	r := &Report{}
	assert.Equal(t, UntitledReport, r.DisplayTitle())

	empty := ""
	r.Title = &empty
	assert.Equal(t, UntitledReport, r.DisplayTitle())

	title := "Buraco na rua"
	r.Title = &title
	assert.Equal(t, "Buraco na rua", r.DisplayTitle())
}

func TestLookupCategory(t *testing.T) {
	c, ok := LookupCategory("lighting")
	require.True(t, ok)
	assert.Equal(t, "Iluminação", c.Name)

	c, ok = LookupCategory("água e esgoto")
	require.True(t, ok)
	assert.Equal(t, "water", c.ID)

	_, ok = LookupCategory("unknown")
	assert.False(t, ok)
}
