// Package progress implements the progress upload pipeline: header checks,
// type detection, row processing and the HOD verification gate.
package progress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/logger"
	"srap/pkg/sheet"
	"srap/pkg/storage"
)

// DefaultMaxBytes is the upload size limit when Importer.MaxBytes is unset.
const DefaultMaxBytes int64 = 10 << 20

type Importer struct {
	DB            *gorm.DB
	Store         storage.Storage
	Log           *logger.Logger
	MaxBytes      int64
	DefaultPolicy ErrorPolicy
	Now           func() time.Time
}

func NewImporter(db *gorm.DB, store storage.Storage, log *logger.Logger) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{
		DB:            db,
		Store:         store,
		Log:           log,
		MaxBytes:      DefaultMaxBytes,
		DefaultPolicy: PolicyBestEffort,
		Now:           time.Now,
	}
}

type ImportRequest struct {
	File         io.Reader
	Filename     string
	ContentType  string
	DeclaredType models.FileType
	Overwrite    bool
	// Policy overrides the importer default when set.
	Policy   ErrorPolicy
	Uploader *models.User
}

type ImportResult struct {
	Upload  *models.UploadedFile `json:"upload"`
	Results Results              `json:"results"`
}

func (im *Importer) now() time.Time {
	if im.Now != nil {
		return im.Now().UTC()
	}
	return time.Now().UTC()
}

func (im *Importer) maxBytes() int64 {
	if im.MaxBytes > 0 {
		return im.MaxBytes
	}
	return DefaultMaxBytes
}

// Import runs one upload end to end. The ledger row is created first and
// survives a failed batch with status failed; everything else (stored file,
// progress rows, milestone updates) is committed or rolled back together.
// On failure the returned result still carries the failed ledger row when one
// was created.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if req.Uploader == nil || !req.Uploader.RoleName().CanUpload() {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(filepath.Base(req.Filename))
	if !sheet.SupportedExt(name) {
		return nil, &FileError{Msg: "The file must be a spreadsheet of type xlsx, xls or csv", Err: sheet.ErrUnsupportedFormat}
	}
	declared, ok := models.ParseFileType(string(req.DeclaredType))
	if !ok {
		return nil, &FileError{Msg: fmt.Sprintf("Unknown upload type %q", req.DeclaredType)}
	}
	policy := req.Policy
	if policy == "" {
		policy = im.DefaultPolicy
	}
	if _, ok := ParsePolicy(string(policy)); !ok {
		return nil, &FileError{Msg: fmt.Sprintf("Unknown error policy %q", policy)}
	}
	data, err := io.ReadAll(io.LimitReader(req.File, im.maxBytes()+1))
	if err != nil {
		return nil, &FileError{Msg: "Unable to read uploaded file", Err: err}
	}
	if int64(len(data)) > im.maxBytes() {
		return nil, &FileError{Msg: fmt.Sprintf("The file may not be larger than %d MB", im.maxBytes()>>20)}
	}

	now := im.now()
	upload := &models.UploadedFile{
		OriginalName:      name,
		FileType:          declared,
		DeclaredType:      declared,
		FileSize:          int64(len(data)),
		ContentType:       req.ContentType,
		Status:            models.UploadPending,
		ErrorPolicy:       string(policy),
		OverwriteExisting: req.Overwrite,
		RequiresApproval:  req.Uploader.RoleName().IsRestricted(),
		UploadedBy:        req.Uploader.ID,
	}
	upload.SetErrors(nil)
	if err := im.DB.WithContext(ctx).Create(upload).Error; err != nil {
		return nil, fmt.Errorf("create upload ledger: %w", err)
	}
	log := im.Log.With("upload_id", upload.ID, "uploader", req.Uploader.Username, "file", name)

	key := storage.ProgressUploadKey(now, upload.ID, name)
	stored := false
	var results Results
	err = im.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := im.Store.Save(ctx, key, bytes.NewReader(data), int64(len(data)), req.ContentType); err != nil {
			return &FileError{Msg: "Unable to store uploaded file", Err: err}
		}
		stored = true

		rows, err := sheet.ReadRows(bytes.NewReader(data), name)
		if err != nil {
			return &FileError{Msg: "Unable to read spreadsheet: " + err.Error(), Err: err}
		}
		headers := rows[0]
		fileType := DetectType(headers, declared)
		if fileType != declared {
			log.Info("upload type corrected from headers", "declared", declared, "detected", fileType)
		}
		if err := ValidateHeaders(headers, fileType); err != nil {
			return err
		}
		upload.FileType = fileType
		upload.FilePath = key

		b := &batch{
			tx:        tx,
			upload:    upload,
			uploader:  req.Uploader,
			overwrite: req.Overwrite,
			policy:    policy,
			now:       now,
			cols:      indexColumns(headers),
		}
		results, err = b.run(ctx, rows[1:])
		if err != nil {
			return err
		}
		upload.Status = models.UploadCompleted
		upload.RecordsProcessed = results.Success
		upload.SetErrors(results.ErrorDetails)
		return tx.Save(upload).Error
	})
	if err == nil {
		log.Info("upload processed", "type", upload.FileType, "success", results.Success, "errors", results.Errors)
		return &ImportResult{Upload: upload, Results: results}, nil
	}

	if stored {
		if derr := im.Store.Delete(context.WithoutCancel(ctx), key); derr != nil {
			log.Warn("failed to remove stored file after rollback", "key", key, "error", derr)
		}
	}
	failure := models.RowError{Row: 0, Error: UserMessage(err)}
	var rowErr *RowError
	if errors.As(err, &rowErr) {
		failure.Row = rowErr.Row
	}
	upload.Status = models.UploadFailed
	upload.FilePath = ""
	upload.RecordsProcessed = 0
	upload.SetErrors([]models.RowError{failure})
	if uerr := im.DB.WithContext(context.WithoutCancel(ctx)).Model(upload).
		Select("status", "file_path", "file_type", "records_processed", "errors_count", "error_details").
		Updates(upload).Error; uerr != nil {
		log.Error("failed to mark upload as failed", "error", uerr)
	}
	log.Warn("upload failed", "error", err)
	return &ImportResult{
		Upload:  upload,
		Results: Results{Errors: 1, ErrorDetails: []models.RowError{failure}},
	}, err
}

// UserMessage returns the text shown to the uploader for a batch failure.
func UserMessage(err error) string {
	var fe *FileError
	var re *RowError
	switch {
	case errors.As(err, &fe):
		return fe.Msg
	case errors.As(err, &re):
		return re.Msg
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Upload was cancelled"
	default:
		return "Upload failed due to an internal error"
	}
}
