package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/pagination"
	"srap/pkg/progress"
	"srap/pkg/sheet"
	"srap/pkg/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// storeUploadHandler accepts a multipart spreadsheet (field "file") and runs it through the importer.
// Form fields: file_type (kpi_progress|milestone_progress), overwrite_existing, error_policy.
func storeUploadHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > importer.MaxBytes {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("The file may not be larger than %d MB", importer.MaxBytes>>20)})
		return
	}
	fileType, ok := models.ParseFileType(c.PostForm("file_type"))
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "file_type must be kpi_progress or milestone_progress"})
		return
	}
	var policy progress.ErrorPolicy
	if v := c.PostForm("error_policy"); v != "" {
		p, ok := progress.ParsePolicy(v)
		if !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "error_policy must be best_effort or fail_fast"})
			return
		}
		policy = p
	}
	overwrite, _ := strconv.ParseBool(c.DefaultPostForm("overwrite_existing", "false"))

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open uploaded file"})
		return
	}
	defer f.Close()

	res, err := importer.Import(c.Request.Context(), progress.ImportRequest{
		File:         f,
		Filename:     file.Filename,
		ContentType:  file.Header.Get("Content-Type"),
		DeclaredType: fileType,
		Overwrite:    overwrite,
		Policy:       policy,
		Uploader:     user,
	})
	if err != nil {
		if res == nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Upload failed: " + progress.UserMessage(err),
			"upload":  res.Upload,
			"results": res.Results,
		})
		return
	}
	msg := fmt.Sprintf("File processed successfully. %d records processed, %d errors.", res.Results.Success, res.Results.Errors)
	if res.Upload.RequiresApproval && res.Results.Success > 0 {
		msg += " Entries are awaiting HOD approval."
	}
	c.JSON(http.StatusOK, gin.H{
		"message":           msg,
		"upload":            res.Upload,
		"results":           res.Results,
		"requires_approval": res.Upload.RequiresApproval,
	})
}

// scopeUploads filters the ledger to what user may see: admins everything,
// HODs their department's uploads, everybody else their own.
func scopeUploads(q *gorm.DB, user *models.User) *gorm.DB {
	switch {
	case user.RoleName().CanDeleteUploads():
		return q
	case user.RoleName().CanApprove() && user.DepartmentID != nil:
		return q.Where("uploaded_files.uploaded_by IN (?)",
			db.Model(&models.User{}).Select("id").Where("department_id = ?", *user.DepartmentID))
	default:
		return q.Where("uploaded_files.uploaded_by = ?", user.ID)
	}
}

func canSeeUpload(user *models.User, up *models.UploadedFile) bool {
	switch {
	case user.RoleName().CanDeleteUploads():
		return true
	case up.UploadedBy == user.ID:
		return true
	case user.RoleName().CanApprove() && up.Uploader != nil:
		return user.SameDepartment(up.Uploader.DepartmentID)
	}
	return false
}

var uploadSortColumns = map[string]string{
	"created_at":        "uploaded_files.created_at",
	"original_name":     "uploaded_files.original_name",
	"records_processed": "uploaded_files.records_processed",
}

func listUploadsHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	p := pagination.Parse(c, "created_at", "desc", pagination.DefaultOpts)
	q := scopeUploads(db.Model(&models.UploadedFile{}), user)
	if v := c.Query("status"); v != "" {
		q = q.Where("uploaded_files.status = ?", v)
	}
	if v := c.Query("file_type"); v != "" {
		q = q.Where("uploaded_files.file_type = ?", v)
	}
	if c.Query("awaiting_approval") == "1" {
		q = q.Where("uploaded_files.requires_approval = ? AND uploaded_files.status = ? AND uploaded_files.approved_at IS NULL AND uploaded_files.rejected_at IS NULL",
			true, models.UploadCompleted)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var items []models.UploadedFile
	if err := q.Preload("Uploader").Order(p.OrderClause(uploadSortColumns, "created_at")).
		Limit(p.Limit()).Offset(p.Offset()).Find(&items).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "meta": p.Meta(total)})
}

func loadVisibleUpload(c *gin.Context) (*models.UploadedFile, bool) {
	user, _ := getUserFromContext(c)
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	var up models.UploadedFile
	if err := db.Preload("Uploader").First(&up, id).Error; err != nil {
		respondError(c, err)
		return nil, false
	}
	if !canSeeUpload(user, &up) {
		respondError(c, progress.ErrForbidden)
		return nil, false
	}
	return &up, true
}

func getUploadHandler(c *gin.Context) {
	up, ok := loadVisibleUpload(c)
	if !ok {
		return
	}
	type statusCount struct {
		VerificationStatus string
		N                  int64
	}
	var counts []statusCount
	if err := db.Model(&models.KpiProgress{}).Select("verification_status, count(*) as n").
		Where("uploaded_file_id = ?", up.ID).Group("verification_status").Scan(&counts).Error; err != nil {
		respondError(c, err)
		return
	}
	entries := gin.H{}
	for _, sc := range counts {
		entries[sc.VerificationStatus] = sc.N
	}
	c.JSON(http.StatusOK, gin.H{"upload": up, "error_details": up.Errors(), "entries": entries})
}

func downloadUploadHandler(c *gin.Context) {
	up, ok := loadVisibleUpload(c)
	if !ok {
		return
	}
	if up.FilePath == "" {
		respondError(c, storage.ErrNotFound)
		return
	}
	rc, err := fileStore.Open(c.Request.Context(), up.FilePath)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()
	ct := up.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, up.FileSize, ct, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, storage.SafeName(up.OriginalName)),
	})
}

func approveUploadHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	dec, err := gate.Approve(c.Request.Context(), id, user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        fmt.Sprintf("Upload approved. %d entries verified.", dec.Affected),
		"approved_count": dec.Affected,
		"kpis_refreshed": dec.KpisRefreshed,
		"upload":         dec.Upload,
	})
}

func rejectUploadHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dec, err := gate.Reject(c.Request.Context(), id, user, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        fmt.Sprintf("Upload rejected. %d entries rejected.", dec.Affected),
		"rejected_count": dec.Affected,
		"upload":         dec.Upload,
	})
}

// deleteUploadHandler removes a ledger row, its still-pending entries and the stored file.
// Verified entries stay; their uploaded_file_id is cleared.
func deleteUploadHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var up models.UploadedFile
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&up, id).Error; err != nil {
			return err
		}
		if err := tx.Where("uploaded_file_id = ? AND verification_status = ?", up.ID, models.VerificationPending).
			Delete(&models.KpiProgress{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.KpiProgress{}).Where("uploaded_file_id = ?", up.ID).Update("uploaded_file_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Milestone{}).Where("uploaded_file_id = ?", up.ID).Update("uploaded_file_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&up).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if up.FilePath != "" {
		if err := fileStore.Delete(context.WithoutCancel(c.Request.Context()), up.FilePath); err != nil {
			appLog.Warn("failed to delete stored upload", "upload_id", up.ID, "key", up.FilePath, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Upload deleted"})
}

// downloadTemplateHandler serves templates/<type>_template.xlsx, generating and caching it on first use.
func downloadTemplateHandler(c *gin.Context) {
	ft, ok := models.ParseFileType(strings.TrimSpace(c.Param("type")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown template type"})
		return
	}
	ctx := c.Request.Context()
	key := storage.TemplateKey(string(ft))
	filename := fmt.Sprintf("%s_template.xlsx", ft)
	headers := map[string]string{"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, filename)}

	if exists, err := fileStore.Exists(ctx, key); err == nil && exists {
		if rc, err := fileStore.Open(ctx, key); err == nil {
			defer rc.Close()
			c.DataFromReader(http.StatusOK, -1, xlsxContentType, rc, headers)
			return
		}
	}
	var buf bytes.Buffer
	if err := sheet.WriteTemplate(&buf, templateSheetName(ft), progress.TemplateHeaders(ft)); err != nil {
		respondError(c, err)
		return
	}
	data := buf.Bytes()
	if err := fileStore.Save(ctx, key, bytes.NewReader(data), int64(len(data)), xlsxContentType); err != nil {
		appLog.Warn("failed to cache template", "key", key, "error", err)
	}
	c.DataFromReader(http.StatusOK, int64(len(data)), xlsxContentType, bytes.NewReader(data), headers)
}

func templateSheetName(ft models.FileType) string {
	if ft == models.FileTypeMilestoneProgress {
		return "Milestone Progress"
	}
	return "KPI Progress"
}
