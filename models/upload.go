package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type FileType string

const (
	FileTypeKpiProgress       FileType = "kpi_progress"
	FileTypeMilestoneProgress FileType = "milestone_progress"
)

func ParseFileType(s string) (FileType, bool) {
	switch FileType(s) {
	case FileTypeKpiProgress, FileTypeMilestoneProgress:
		return FileType(s), true
	}
	return "", false
}

type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

// RowError is one entry of an upload's error list. Row is the 1-based spreadsheet row (0 for file-level).
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// UploadedFile is the upload ledger: one row per submitted batch.
type UploadedFile struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	FilePath          string         `gorm:"size:512" json:"file_path"`
	OriginalName      string         `gorm:"size:255;not null" json:"original_name"`
	FileType          FileType       `gorm:"size:32;not null" json:"file_type"`
	DeclaredType      FileType       `gorm:"size:32" json:"declared_type"`
	FileSize          int64          `json:"file_size"`
	ContentType       string         `gorm:"size:128" json:"content_type"`
	Status            UploadStatus   `gorm:"size:16;not null;default:pending;index" json:"status"`
	RecordsProcessed  int            `gorm:"not null;default:0" json:"records_processed"`
	ErrorsCount       int            `gorm:"not null;default:0" json:"errors_count"`
	ErrorDetails      datatypes.JSON `json:"error_details"`
	ErrorPolicy       string         `gorm:"size:16" json:"error_policy"`
	OverwriteExisting bool           `gorm:"default:false" json:"overwrite_existing"`
	RequiresApproval  bool           `gorm:"default:false;index" json:"requires_approval"`
	UploadedBy        uint           `gorm:"index;not null" json:"uploaded_by"`
	Uploader          *User          `gorm:"foreignKey:UploadedBy;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"uploader,omitempty"`
	ApprovedBy        *uint          `json:"approved_by"`
	ApprovedAt        *time.Time     `json:"approved_at"`
	RejectedBy        *uint          `json:"rejected_by"`
	RejectedAt        *time.Time     `json:"rejected_at"`
	RejectionReason   string         `gorm:"type:text" json:"rejection_reason"`
}

// Errors decodes ErrorDetails; malformed JSON yields nil.
func (u *UploadedFile) Errors() []RowError {
	if len(u.ErrorDetails) == 0 {
		return nil
	}
	var out []RowError
	if err := json.Unmarshal(u.ErrorDetails, &out); err != nil {
		return nil
	}
	return out
}

// SetErrors encodes errs into ErrorDetails and updates ErrorsCount.
func (u *UploadedFile) SetErrors(errs []RowError) {
	if errs == nil {
		errs = []RowError{}
	}
	b, _ := json.Marshal(errs)
	u.ErrorDetails = datatypes.JSON(b)
	u.ErrorsCount = len(errs)
}

// Decided reports whether an approver already approved or rejected the batch.
func (u *UploadedFile) Decided() bool {
	return u.ApprovedAt != nil || u.RejectedAt != nil
}
