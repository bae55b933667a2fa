package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleCapabilities(t *testing.T) {
	tests := []struct {
		role       RoleName
		manage     bool
		upload     bool
		restricted bool
		approve    bool
	}{
		{RoleAdmin, true, true, false, false},
		{RoleHOD, false, true, false, true},
		{RoleDataOfficer, false, true, true, false},
		{RoleStaff, false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.manage, tt.role.CanManageKPIs())
			assert.Equal(t, tt.upload, tt.role.CanUpload())
			assert.Equal(t, tt.restricted, tt.role.IsRestricted())
			assert.Equal(t, tt.approve, tt.role.CanApprove())
		})
	}
}

func TestParseRoleName(t *testing.T) {
	r, ok := ParseRoleName("  Data_Officer ")
	require.True(t, ok)
	assert.Equal(t, RoleDataOfficer, r)

	_, ok = ParseRoleName("administrator")
	assert.False(t, ok)
}

func TestProgressPercentage(t *testing.T) {
	assert.Equal(t, 50.0, ProgressPercentage(50, 100))
	assert.Equal(t, 100.0, ProgressPercentage(250, 100))
	assert.Equal(t, 0.0, ProgressPercentage(10, 0))
	assert.Equal(t, 33.33, ProgressPercentage(1, 3))
}

func TestDeriveMilestoneStatus(t *testing.T) {
	assert.Equal(t, MilestoneCompleted, DeriveMilestoneStatus(100))
	assert.Equal(t, MilestoneInProgress, DeriveMilestoneStatus(40))
	assert.Equal(t, MilestoneNotStarted, DeriveMilestoneStatus(0))
}

func TestUploadedFileErrors(t *testing.T) {
	var u UploadedFile
	assert.Nil(t, u.Errors())

	u.SetErrors([]RowError{{Row: 3, Error: "KPI with ID 9 not found"}})
	assert.Equal(t, 1, u.ErrorsCount)
	assert.Equal(t, []RowError{{Row: 3, Error: "KPI with ID 9 not found"}}, u.Errors())

	u.SetErrors(nil)
	assert.Equal(t, 0, u.ErrorsCount)
	assert.JSONEq(t, `[]`, string(u.ErrorDetails))
}

func TestMilestoneOverdue(t *testing.T) {
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := Milestone{DueDate: &due, Status: MilestoneInProgress}
	assert.True(t, m.Overdue(due.Add(time.Hour)))
	m.Status = MilestoneCompleted
	assert.False(t, m.Overdue(due.Add(time.Hour)))
}
