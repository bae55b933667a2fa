package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srap/models"
)

func TestValidateHeaders(t *testing.T) {
	require.NoError(t, ValidateHeaders([]string{" kpi id", "Reporting  Date", "CURRENT VALUE", ""}, models.FileTypeKpiProgress))

	err := ValidateHeaders([]string{"Milestone ID", "", "Notes"}, models.FileTypeMilestoneProgress)
	require.Error(t, err)
	assert.Equal(t, "Missing required columns: Completion Percentage. Found columns: Milestone ID, Notes", err.Error())

	err = ValidateHeaders(nil, models.FileTypeKpiProgress)
	assert.Equal(t, "Missing required columns: KPI ID, Reporting Date, Current Value. Found columns: (none)", err.Error())
}

func TestDetectType(t *testing.T) {
	kpi := []string{"KPI ID", "Reporting Date", "Current Value"}
	ms := []string{"Milestone ID", "Completion Percentage"}
	both := append(append([]string{}, kpi...), ms...)

	tests := []struct {
		name     string
		headers  []string
		declared models.FileType
		want     models.FileType
	}{
		{"kpi headers override", kpi, models.FileTypeMilestoneProgress, models.FileTypeKpiProgress},
		{"milestone headers override", ms, models.FileTypeKpiProgress, models.FileTypeMilestoneProgress},
		{"both keep declared", both, models.FileTypeMilestoneProgress, models.FileTypeMilestoneProgress},
		{"neither keep declared", []string{"Foo"}, models.FileTypeKpiProgress, models.FileTypeKpiProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectType(tt.headers, tt.declared))
		})
	}
}

func TestTemplateHeadersStartWithRequired(t *testing.T) {
	assert.Equal(t, []string{"KPI ID", "Reporting Date", "Current Value", "KPI Title", "Notes", "Entry Type", "Source"},
		TemplateHeaders(models.FileTypeKpiProgress))
	assert.Empty(t, TemplateHeaders("unknown"))
}

func TestParsePolicy(t *testing.T) {
	p, ok := ParsePolicy(" FAIL_FAST ")
	require.True(t, ok)
	assert.Equal(t, PolicyFailFast, p)
	_, ok = ParsePolicy("lenient")
	assert.False(t, ok)
}
