package models

import (
	"math"
	"time"

	"gorm.io/datatypes"
)

type KpiStatus string

const (
	KpiActive   KpiStatus = "active"
	KpiArchived KpiStatus = "archived"
)

// Kpi is the tracked target entity. CurrentValue mirrors the latest verified progress entry.
type Kpi struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Title         string      `gorm:"size:255;not null" json:"title"`
	Description   string      `gorm:"type:text" json:"description"`
	Unit          string      `gorm:"size:64" json:"unit"`
	DepartmentID  uint        `gorm:"index;not null" json:"department_id"`
	Department    *Department `gorm:"foreignKey:DepartmentID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"department,omitempty"`
	PillarID      *uint       `gorm:"index" json:"pillar_id"`
	Pillar        *Pillar     `gorm:"foreignKey:PillarID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"pillar,omitempty"`
	TargetValue   float64     `gorm:"not null;default:0" json:"target_value"`
	BaselineValue float64     `gorm:"not null;default:0" json:"baseline_value"`
	CurrentValue  float64     `gorm:"not null;default:0" json:"current_value"`
	Frequency     string      `gorm:"size:32" json:"frequency"`
	StartDate     *time.Time  `json:"start_date"`
	EndDate       *time.Time  `json:"end_date"`
	Status        KpiStatus   `gorm:"size:16;not null;default:active;index" json:"status"`
	CreatedBy     *uint       `gorm:"index" json:"created_by"`
}

// Percentage of target reached by CurrentValue.
func (k *Kpi) Percentage() float64 {
	return ProgressPercentage(k.CurrentValue, k.TargetValue)
}

type EntryType string

const (
	EntryManual EntryType = "manual"
	EntryUpload EntryType = "upload"
	EntryAPI    EntryType = "api"
	EntrySystem EntryType = "system"
)

func (e EntryType) Valid() bool {
	switch e {
	case EntryManual, EntryUpload, EntryAPI, EntrySystem:
		return true
	}
	return false
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// SourceExcelUpload marks entries produced by spreadsheet uploads.
const SourceExcelUpload = "excel_upload"

// KpiProgress is one observation of a KPI on a reporting date.
type KpiProgress struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	KpiID              uint               `gorm:"not null;uniqueIndex:idx_kpi_progress_kpi_date" json:"kpi_id"`
	Kpi                *Kpi               `gorm:"foreignKey:KpiID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"kpi,omitempty"`
	ReportingDate      time.Time          `gorm:"not null;uniqueIndex:idx_kpi_progress_kpi_date" json:"reporting_date"`
	Value              float64            `gorm:"not null" json:"value"`
	Percentage         float64            `gorm:"not null;default:0" json:"percentage"`
	Notes              string             `gorm:"type:text" json:"notes"`
	EntryType          EntryType          `gorm:"size:16;not null;default:manual" json:"entry_type"`
	Source             string             `gorm:"size:64" json:"source"`
	ReportedBy         uint               `gorm:"index;not null" json:"reported_by"`
	VerifiedBy         *uint              `gorm:"index" json:"verified_by"`
	VerifiedAt         *time.Time         `json:"verified_at"`
	VerificationStatus VerificationStatus `gorm:"size:16;not null;default:pending;index" json:"verification_status"`
	VerificationNotes  string             `gorm:"type:text" json:"verification_notes"`
	UploadedFileID     *uint              `gorm:"index" json:"uploaded_file_id"`
	UploadedFile       *UploadedFile      `gorm:"foreignKey:UploadedFileID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
	Metadata           datatypes.JSON     `json:"metadata"`
}

func (KpiProgress) TableName() string { return "kpi_progress" }

// ProgressPercentage returns value/target as a percentage capped at 100; zero when target is not positive.
func ProgressPercentage(value, target float64) float64 {
	if target <= 0 {
		return 0
	}
	p := value / target * 100
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return math.Round(p*100) / 100
}

// ReportingDay truncates t to a UTC calendar day so (kpi, date) keys compare equal.
func ReportingDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
