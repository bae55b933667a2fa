package models

import "time"

type MilestoneStatus string

const (
	MilestoneNotStarted MilestoneStatus = "not_started"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneDelayed    MilestoneStatus = "delayed"
	MilestoneOnHold     MilestoneStatus = "on_hold"
)

func ParseMilestoneStatus(s string) (MilestoneStatus, bool) {
	st := MilestoneStatus(s)
	switch st {
	case MilestoneNotStarted, MilestoneInProgress, MilestoneCompleted, MilestoneDelayed, MilestoneOnHold:
		return st, true
	}
	return "", false
}

// DeriveMilestoneStatus maps a completion percentage to a status when none was given.
func DeriveMilestoneStatus(pct float64) MilestoneStatus {
	switch {
	case pct >= 100:
		return MilestoneCompleted
	case pct > 0:
		return MilestoneInProgress
	default:
		return MilestoneNotStarted
	}
}

// Milestone belongs to a KPI and inherits its department.
type Milestone struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	KpiID                uint            `gorm:"index;not null" json:"kpi_id"`
	Kpi                  *Kpi            `gorm:"foreignKey:KpiID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"kpi,omitempty"`
	Title                string          `gorm:"size:255;not null" json:"title"`
	Description          string          `gorm:"type:text" json:"description"`
	DueDate              *time.Time      `json:"due_date"`
	CompletionPercentage float64         `gorm:"not null;default:0" json:"completion_percentage"`
	Status               MilestoneStatus `gorm:"size:16;not null;default:not_started;index" json:"status"`
	CompletedDate        *time.Time      `json:"completed_date"`
	Notes                string          `gorm:"type:text" json:"notes"`
	LastReportedAt       *time.Time      `json:"last_reported_at"`
	LastReportedBy       *uint           `json:"last_reported_by"`
	UploadedFileID       *uint           `gorm:"index" json:"uploaded_file_id"`
}

// Overdue reports whether the milestone passed its due date without completing.
func (m *Milestone) Overdue(now time.Time) bool {
	return m.DueDate != nil && m.Status != MilestoneCompleted && now.After(*m.DueDate)
}
