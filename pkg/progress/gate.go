package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/logger"
)

// Gate finalizes pending progress entries: HOD approval or rejection of a
// whole upload batch, or of a single manually entered entry.
type Gate struct {
	DB  *gorm.DB
	Log *logger.Logger
	Now func() time.Time
}

func NewGate(db *gorm.DB, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	return &Gate{DB: db, Log: log, Now: time.Now}
}

// Decision summarizes an approve or reject call.
type Decision struct {
	Upload        *models.UploadedFile `json:"upload"`
	Affected      int64                `json:"affected"`
	KpisRefreshed int                  `json:"kpis_refreshed"`
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

// Approve verifies every pending entry produced by upload uploadID and
// recomputes each affected KPI's current value from its latest verified entry.
func (g *Gate) Approve(ctx context.Context, uploadID uint, approver *models.User) (*Decision, error) {
	now := g.now()
	var dec Decision
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upload, err := g.loadForDecision(tx, uploadID, approver)
		if err != nil {
			return err
		}
		var kpiIDs []uint
		if err := tx.Model(&models.KpiProgress{}).
			Where("uploaded_file_id = ? AND verification_status = ?", upload.ID, models.VerificationPending).
			Distinct().Pluck("kpi_id", &kpiIDs).Error; err != nil {
			return err
		}
		res := tx.Model(&models.KpiProgress{}).
			Where("uploaded_file_id = ? AND verification_status = ?", upload.ID, models.VerificationPending).
			Updates(map[string]interface{}{
				"verification_status": models.VerificationVerified,
				"verified_by":         approver.ID,
				"verified_at":         now,
			})
		if res.Error != nil {
			return res.Error
		}
		dec.Affected = res.RowsAffected
		for _, id := range kpiIDs {
			ok, err := RefreshKpiCurrentValue(tx, id)
			if err != nil {
				return fmt.Errorf("refresh kpi %d: %w", id, err)
			}
			if ok {
				dec.KpisRefreshed++
			}
		}
		approverID := approver.ID
		upload.ApprovedBy = &approverID
		upload.ApprovedAt = &now
		if err := tx.Model(upload).Select("approved_by", "approved_at").Updates(upload).Error; err != nil {
			return err
		}
		dec.Upload = upload
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.Log.Info("upload approved", "upload_id", uploadID, "approver", approver.Username, "entries", dec.Affected)
	return &dec, nil
}

// Reject marks every pending entry of the upload as rejected. reason is mandatory.
func (g *Gate) Reject(ctx context.Context, uploadID uint, approver *models.User, reason string) (*Decision, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	now := g.now()
	var dec Decision
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upload, err := g.loadForDecision(tx, uploadID, approver)
		if err != nil {
			return err
		}
		res := tx.Model(&models.KpiProgress{}).
			Where("uploaded_file_id = ? AND verification_status = ?", upload.ID, models.VerificationPending).
			Updates(map[string]interface{}{
				"verification_status": models.VerificationRejected,
				"verified_by":         approver.ID,
				"verified_at":         now,
				"verification_notes":  reason,
			})
		if res.Error != nil {
			return res.Error
		}
		dec.Affected = res.RowsAffected
		approverID := approver.ID
		upload.RejectedBy = &approverID
		upload.RejectedAt = &now
		upload.RejectionReason = reason
		if err := tx.Model(upload).Select("rejected_by", "rejected_at", "rejection_reason").Updates(upload).Error; err != nil {
			return err
		}
		dec.Upload = upload
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.Log.Info("upload rejected", "upload_id", uploadID, "approver", approver.Username, "entries", dec.Affected)
	return &dec, nil
}

// loadForDecision fetches the upload and checks that approver may decide it:
// the approve capability plus the uploader's department.
func (g *Gate) loadForDecision(tx *gorm.DB, uploadID uint, approver *models.User) (*models.UploadedFile, error) {
	if approver == nil || !approver.RoleName().CanApprove() {
		return nil, ErrForbidden
	}
	var upload models.UploadedFile
	if err := tx.Preload("Uploader").First(&upload, uploadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if upload.Uploader == nil || !approver.SameDepartment(upload.Uploader.DepartmentID) {
		return nil, ErrForbidden
	}
	if upload.Decided() || upload.Status != models.UploadCompleted {
		return nil, ErrConflict
	}
	return &upload, nil
}

// VerifyEntry approves or rejects one pending entry. Rejection needs notes.
func (g *Gate) VerifyEntry(ctx context.Context, entryID uint, approver *models.User, approve bool, notes string) (*models.KpiProgress, error) {
	notes = strings.TrimSpace(notes)
	if !approve && notes == "" {
		return nil, ErrReasonRequired
	}
	if approver == nil || !approver.RoleName().CanApprove() {
		return nil, ErrForbidden
	}
	now := g.now()
	var entry models.KpiProgress
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Kpi").First(&entry, entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if entry.Kpi == nil || !approver.SameDepartment(&entry.Kpi.DepartmentID) {
			return ErrForbidden
		}
		if entry.VerificationStatus != models.VerificationPending {
			return ErrConflict
		}
		status := models.VerificationRejected
		if approve {
			status = models.VerificationVerified
		}
		id := approver.ID
		entry.VerificationStatus = status
		entry.VerifiedBy = &id
		entry.VerifiedAt = &now
		entry.VerificationNotes = notes
		if err := tx.Model(&entry).Select("verification_status", "verified_by", "verified_at", "verification_notes").Updates(&entry).Error; err != nil {
			return err
		}
		if approve {
			if _, err := RefreshKpiCurrentValue(tx, entry.KpiID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
