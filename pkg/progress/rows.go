package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/sheet"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if l := f.Tag.Get("label"); l != "" {
			return l
		}
		return f.Name
	})
	return v
}

type kpiProgressRow struct {
	KpiID         string `label:"KPI ID" validate:"required"`
	ReportingDate string `label:"Reporting Date" validate:"required"`
	CurrentValue  string `label:"Current Value" validate:"required"`
	KpiTitle      string
	Notes         string
	EntryType     string
	Source        string
}

type milestoneRow struct {
	MilestoneID   string `label:"Milestone ID" validate:"required"`
	Completion    string `label:"Completion Percentage" validate:"required"`
	Title         string
	Status        string
	Notes         string
	CompletedDate string
}

// requiredFieldsError turns validator output into "Missing required fields (A, B)".
func requiredFieldsError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, fe.Field())
	}
	return fmt.Sprintf("Missing required fields (%s)", strings.Join(names, ", "))
}

func parseID(s string) (uint, bool) {
	f, ok := sheet.ParseNumber(s)
	if !ok || f < 1 || f != math.Trunc(f) || f > math.MaxUint32 {
		return 0, false
	}
	return uint(f), true
}

func jsonMeta(v map[string]interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// verificationFor stamps entry as pending or auto-verified depending on the reporter's role.
func verificationFor(entry *models.KpiProgress, reporter *models.User, now time.Time) {
	if reporter.RoleName().IsRestricted() {
		entry.VerificationStatus = models.VerificationPending
		entry.VerifiedBy = nil
		entry.VerifiedAt = nil
		return
	}
	id := reporter.ID
	at := now
	entry.VerificationStatus = models.VerificationVerified
	entry.VerifiedBy = &id
	entry.VerifiedAt = &at
}

// saveProgress creates entry or, when overwrite is set, replaces the existing
// (kpi_id, reporting_date) entry in place. Without overwrite an existing entry
// yields errDuplicateEntry and stays untouched.
func saveProgress(tx *gorm.DB, entry *models.KpiProgress, overwrite bool) error {
	var existing models.KpiProgress
	err := tx.Where("kpi_id = ? AND reporting_date = ?", entry.KpiID, entry.ReportingDate).First(&existing).Error
	switch {
	case err == nil:
		if !overwrite {
			return errDuplicateEntry
		}
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
		return tx.Save(entry).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(entry).Error; err != nil {
			if isUniqueConstraintError(err) {
				return errDuplicateEntry
			}
			return err
		}
		return nil
	default:
		return err
	}
}

func duplicateMessage(kpiID uint, day time.Time) string {
	return fmt.Sprintf("Progress entry for KPI %d on %s already exists. Enable overwrite to update it.", kpiID, day.Format("2006-01-02"))
}

// RefreshKpiCurrentValue copies the value of the KPI's latest verified entry
// (by reporting date) onto kpis.current_value. It reports false when the KPI
// has no verified entry, in which case the cached value is left alone.
func RefreshKpiCurrentValue(tx *gorm.DB, kpiID uint) (bool, error) {
	var latest models.KpiProgress
	err := tx.Where("kpi_id = ? AND verification_status = ?", kpiID, models.VerificationVerified).
		Order("reporting_date DESC").Order("id DESC").
		First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := tx.Model(&models.Kpi{}).Where("id = ?", kpiID).Update("current_value", latest.Value).Error; err != nil {
		return false, err
	}
	return true, nil
}
