package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"srap/models"
)

// ManualEntry is a progress value typed in through the API instead of uploaded.
type ManualEntry struct {
	ReportingDate time.Time
	Value         float64
	Notes         string
	EntryType     models.EntryType
	Source        string
	Overwrite     bool
}

// DuplicateEntryError is returned by RecordProgress when the (kpi, date) entry
// exists and overwrite was not requested.
type DuplicateEntryError struct {
	KpiID uint
	Day   time.Time
}

func (e *DuplicateEntryError) Error() string { return duplicateMessage(e.KpiID, e.Day) }
func (e *DuplicateEntryError) Is(target error) bool {
	return target == ErrConflict
}

// RecordProgress stores a single progress entry under the same rules as an
// upload row: department scoping for restricted roles, role based
// verification and opt-in overwrite.
func RecordProgress(ctx context.Context, db *gorm.DB, reporter *models.User, kpiID uint, in ManualEntry, now time.Time) (*models.KpiProgress, error) {
	if reporter == nil || !reporter.RoleName().CanUpload() {
		return nil, ErrForbidden
	}
	if in.EntryType == "" {
		in.EntryType = models.EntryManual
	}
	if !in.EntryType.Valid() {
		return nil, fmt.Errorf("invalid entry type %q", in.EntryType)
	}
	var entry *models.KpiProgress
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var kpi models.Kpi
		if err := tx.First(&kpi, kpiID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if reporter.RoleName().IsRestricted() && !reporter.SameDepartment(&kpi.DepartmentID) {
			return ErrForbidden
		}
		day := models.ReportingDay(in.ReportingDate)
		entry = &models.KpiProgress{
			KpiID:         kpi.ID,
			ReportingDate: day,
			Value:         in.Value,
			Percentage:    models.ProgressPercentage(in.Value, kpi.TargetValue),
			Notes:         in.Notes,
			EntryType:     in.EntryType,
			Source:        in.Source,
			ReportedBy:    reporter.ID,
		}
		verificationFor(entry, reporter, now.UTC())
		if err := saveProgress(tx, entry, in.Overwrite); err != nil {
			if errors.Is(err, errDuplicateEntry) {
				return &DuplicateEntryError{KpiID: kpi.ID, Day: day}
			}
			return err
		}
		_, err := RefreshKpiCurrentValue(tx, kpi.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
