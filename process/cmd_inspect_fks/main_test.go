package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissingFKs(t *testing.T) {
	found := []foreignKey{
		{"kpi_progress", "kpi_id", "kpis"},
		{"kpi_progress", "uploaded_file_id", "uploaded_files"},
		{"audit", "x", "y"},
	}
	expected := []foreignKey{
		{"kpi_progress", "kpi_id", "kpis"},
		{"kpi_progress", "uploaded_file_id", "uploaded_files"},
		{"milestones", "kpi_id", "kpis"},
	}
	assert.Equal(t, []foreignKey{{"milestones", "kpi_id", "kpis"}}, missingFKs(found, expected))
	assert.Empty(t, missingFKs(found, expected[:2]))
	assert.Equal(t, "milestones(kpi_id) -> kpis", foreignKey{"milestones", "kpi_id", "kpis"}.String())
}
