// Package purge removes old failed upload ledgers together with any stored file they still point to.
package purge

import (
	"context"
	"time"

	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/logger"
	"srap/pkg/storage"
)

type Result struct {
	Ledgers int
	Files   int
}

// FailedUploads deletes failed ledgers created before cutoff. With dryRun it only counts them.
func FailedUploads(ctx context.Context, db *gorm.DB, store storage.Storage, log *logger.Logger, cutoff time.Time, dryRun bool) (Result, error) {
	var res Result
	var uploads []models.UploadedFile
	if err := db.WithContext(ctx).Where("status = ? AND created_at < ?", models.UploadFailed, cutoff).
		Order("id").Find(&uploads).Error; err != nil {
		return res, err
	}
	if dryRun {
		res.Ledgers = len(uploads)
		for _, u := range uploads {
			if u.FilePath != "" {
				res.Files++
			}
		}
		return res, nil
	}
	for _, u := range uploads {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.KpiProgress{}).Where("uploaded_file_id = ?", u.ID).Update("uploaded_file_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Milestone{}).Where("uploaded_file_id = ?", u.ID).Update("uploaded_file_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(&models.UploadedFile{}, u.ID).Error
		})
		if err != nil {
			return res, err
		}
		res.Ledgers++
		if u.FilePath == "" || store == nil {
			continue
		}
		if err := store.Delete(ctx, u.FilePath); err != nil {
			log.Warn("failed to delete stored file", "upload_id", u.ID, "key", u.FilePath, "error", err)
			continue
		}
		res.Files++
	}
	return res, nil
}
