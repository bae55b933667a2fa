package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/pagination"
	"srap/pkg/progress"
	"srap/pkg/sheet"
)

// scopeToDepartment limits q to the user's department for roles that do not see everything.
func scopeToDepartment(q *gorm.DB, user *models.User, column string) *gorm.DB {
	if user.RoleName().SeesAllDepartments() {
		return q
	}
	if user.DepartmentID == nil {
		return q.Where("1 = 0")
	}
	return q.Where(column+" = ?", *user.DepartmentID)
}

// canSeeKpi reports whether user may read kpi.
func canSeeKpi(user *models.User, kpi *models.Kpi) bool {
	return user.RoleName().SeesAllDepartments() || user.SameDepartment(&kpi.DepartmentID)
}

func parseOptionalDate(s *string) (*time.Time, bool) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, true
	}
	t, ok := sheet.ParseDate(*s)
	if !ok {
		return nil, false
	}
	return &t, true
}

func listDepartmentsHandler(c *gin.Context) {
	var items []models.Department
	if err := db.Order("name").Find(&items).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func createDepartmentHandler(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required,max=255"`
		Code string `json:"code" binding:"required,max=32"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d := models.Department{Name: strings.TrimSpace(req.Name), Code: strings.ToUpper(strings.TrimSpace(req.Code))}
	if err := db.Create(&d).Error; err != nil {
		if isUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "department already exists"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func listPillarsHandler(c *gin.Context) {
	var items []models.Pillar
	if err := db.Order("name").Find(&items).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func createPillarHandler(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required,max=255"`
		Description string `json:"description" binding:"max=1024"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := models.Pillar{Name: strings.TrimSpace(req.Name), Description: req.Description}
	if err := db.Create(&p).Error; err != nil {
		if isUniqueConstraintError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "pillar already exists"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

var kpiSortColumns = map[string]string{
	"created_at":    "kpis.created_at",
	"title":         "kpis.title",
	"current_value": "kpis.current_value",
	"target_value":  "kpis.target_value",
}

// listKpisHandler supports department_id, pillar_id, status and q filters plus pagination.
func listKpisHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	p := pagination.Parse(c, "created_at", "desc", pagination.DefaultOpts)
	q := scopeToDepartment(db.Model(&models.Kpi{}), user, "kpis.department_id")
	if v := c.Query("department_id"); v != "" {
		q = q.Where("kpis.department_id = ?", v)
	}
	if v := c.Query("pillar_id"); v != "" {
		q = q.Where("kpis.pillar_id = ?", v)
	}
	status := c.DefaultQuery("status", string(models.KpiActive))
	if status != "all" {
		q = q.Where("kpis.status = ?", status)
	}
	if v := strings.TrimSpace(c.Query("q")); v != "" {
		q = q.Where("LOWER(kpis.title) LIKE ?", "%"+strings.ToLower(v)+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var items []models.Kpi
	if err := q.Preload("Department").Preload("Pillar").
		Order(p.OrderClause(kpiSortColumns, "created_at")).
		Limit(p.Limit()).Offset(p.Offset()).Find(&items).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "meta": p.Meta(total)})
}

type kpiRequest struct {
	Title         string  `json:"title" binding:"required,max=255"`
	Description   string  `json:"description"`
	Unit          string  `json:"unit" binding:"max=64"`
	DepartmentID  uint    `json:"department_id" binding:"required"`
	PillarID      *uint   `json:"pillar_id"`
	TargetValue   float64 `json:"target_value" binding:"gte=0"`
	BaselineValue float64 `json:"baseline_value"`
	Frequency     string  `json:"frequency" binding:"omitempty,oneof=monthly quarterly biannually annually"`
	StartDate     *string `json:"start_date"`
	EndDate       *string `json:"end_date"`
	Status        string  `json:"status" binding:"omitempty,oneof=active archived"`
}

func (r *kpiRequest) apply(k *models.Kpi) string {
	start, ok := parseOptionalDate(r.StartDate)
	if !ok {
		return "invalid start_date"
	}
	end, ok := parseOptionalDate(r.EndDate)
	if !ok {
		return "invalid end_date"
	}
	if start != nil && end != nil && end.Before(*start) {
		return "end_date must not be before start_date"
	}
	var d models.Department
	if err := db.First(&d, r.DepartmentID).Error; err != nil {
		return "department not found"
	}
	if r.PillarID != nil {
		var p models.Pillar
		if err := db.First(&p, *r.PillarID).Error; err != nil {
			return "pillar not found"
		}
	}
	k.Title = strings.TrimSpace(r.Title)
	k.Description = r.Description
	k.Unit = r.Unit
	k.DepartmentID = r.DepartmentID
	k.PillarID = r.PillarID
	k.TargetValue = r.TargetValue
	k.BaselineValue = r.BaselineValue
	k.Frequency = r.Frequency
	k.StartDate = start
	k.EndDate = end
	if r.Status != "" {
		k.Status = models.KpiStatus(r.Status)
	}
	return ""
}

func createKpiHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	var req kpiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kpi := models.Kpi{Status: models.KpiActive, CurrentValue: req.BaselineValue}
	if msg := req.apply(&kpi); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	uid := user.ID
	kpi.CreatedBy = &uid
	if err := db.Create(&kpi).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "KPI created", "kpi": kpi})
}

func loadVisibleKpi(c *gin.Context) (*models.Kpi, bool) {
	user, _ := getUserFromContext(c)
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	var kpi models.Kpi
	if err := db.Preload("Department").Preload("Pillar").First(&kpi, id).Error; err != nil {
		respondError(c, err)
		return nil, false
	}
	if !canSeeKpi(user, &kpi) {
		respondError(c, progress.ErrForbidden)
		return nil, false
	}
	return &kpi, true
}

func getKpiHandler(c *gin.Context) {
	kpi, ok := loadVisibleKpi(c)
	if !ok {
		return
	}
	var milestones []models.Milestone
	db.Where("kpi_id = ?", kpi.ID).Order("due_date").Find(&milestones)
	var latest []models.KpiProgress
	db.Where("kpi_id = ?", kpi.ID).Order("reporting_date desc").Limit(12).Find(&latest)
	c.JSON(http.StatusOK, gin.H{
		"kpi":             kpi,
		"percentage":      kpi.Percentage(),
		"milestones":      milestones,
		"recent_progress": latest,
	})
}

func updateKpiHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req kpiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var kpi models.Kpi
	if err := db.First(&kpi, id).Error; err != nil {
		respondError(c, err)
		return
	}
	if msg := req.apply(&kpi); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if err := db.Omit("Department", "Pillar").Save(&kpi).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "KPI updated", "kpi": kpi})
}

// archiveKpiHandler archives instead of deleting so progress history survives.
func archiveKpiHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res := db.Model(&models.Kpi{}).Where("id = ?", id).Update("status", models.KpiArchived)
	if res.Error != nil {
		respondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, gorm.ErrRecordNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "KPI archived"})
}

func listKpiProgressHandler(c *gin.Context) {
	kpi, ok := loadVisibleKpi(c)
	if !ok {
		return
	}
	p := pagination.Parse(c, "reporting_date", "desc", pagination.DefaultOpts)
	q := db.Model(&models.KpiProgress{}).Where("kpi_id = ?", kpi.ID)
	if v := c.Query("verification_status"); v != "" {
		q = q.Where("verification_status = ?", v)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var items []models.KpiProgress
	if err := q.Order(p.OrderClause(map[string]string{"reporting_date": "reporting_date", "created_at": "created_at"}, "reporting_date")).
		Limit(p.Limit()).Offset(p.Offset()).Find(&items).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "meta": p.Meta(total)})
}

func createKpiProgressHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ReportingDate string  `json:"reporting_date" binding:"required"`
		Value         float64 `json:"value"`
		Notes         string  `json:"notes"`
		EntryType     string  `json:"entry_type" binding:"omitempty,oneof=manual api system"`
		Source        string  `json:"source" binding:"max=64"`
		Overwrite     bool    `json:"overwrite"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	day, ok := sheet.ParseDate(req.ReportingDate)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reporting_date"})
		return
	}
	entry, err := progress.RecordProgress(c.Request.Context(), db, user, id, progress.ManualEntry{
		ReportingDate: day,
		Value:         req.Value,
		Notes:         req.Notes,
		EntryType:     models.EntryType(req.EntryType),
		Source:        req.Source,
		Overwrite:     req.Overwrite,
	}, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	msg := "Progress recorded"
	if entry.VerificationStatus == models.VerificationPending {
		msg = "Progress recorded and awaiting HOD verification"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "progress": entry})
}

func verifyProgressHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Approve *bool  `json:"approve" binding:"required"`
		Notes   string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := gate.VerifyEntry(c.Request.Context(), id, user, *req.Approve, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Progress " + string(entry.VerificationStatus), "progress": entry})
}

func listMilestonesHandler(c *gin.Context) {
	kpi, ok := loadVisibleKpi(c)
	if !ok {
		return
	}
	var items []models.Milestone
	if err := db.Where("kpi_id = ?", kpi.ID).Order("due_date").Order("id").Find(&items).Error; err != nil {
		respondError(c, err)
		return
	}
	now := time.Now()
	out := make([]gin.H, 0, len(items))
	for i := range items {
		out = append(out, gin.H{"milestone": items[i], "overdue": items[i].Overdue(now)})
	}
	c.JSON(http.StatusOK, out)
}

type milestoneRequest struct {
	Title                string  `json:"title" binding:"required,max=255"`
	Description          string  `json:"description"`
	DueDate              *string `json:"due_date"`
	CompletionPercentage float64 `json:"completion_percentage" binding:"gte=0,lte=100"`
	Status               string  `json:"status" binding:"omitempty,oneof=not_started in_progress completed delayed on_hold"`
	Notes                string  `json:"notes"`
}

func (r *milestoneRequest) apply(m *models.Milestone) string {
	due, ok := parseOptionalDate(r.DueDate)
	if !ok {
		return "invalid due_date"
	}
	m.Title = strings.TrimSpace(r.Title)
	m.Description = r.Description
	m.DueDate = due
	m.CompletionPercentage = r.CompletionPercentage
	m.Notes = r.Notes
	m.Status = models.DeriveMilestoneStatus(r.CompletionPercentage)
	if st, ok := models.ParseMilestoneStatus(r.Status); ok {
		m.Status = st
	}
	if m.Status == models.MilestoneCompleted {
		if m.CompletedDate == nil {
			d := models.ReportingDay(time.Now())
			m.CompletedDate = &d
		}
	} else {
		m.CompletedDate = nil
	}
	return ""
}

func createMilestoneHandler(c *gin.Context) {
	kpiID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req milestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var kpi models.Kpi
	if err := db.First(&kpi, kpiID).Error; err != nil {
		respondError(c, err)
		return
	}
	m := models.Milestone{KpiID: kpi.ID}
	if msg := req.apply(&m); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if err := db.Create(&m).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Milestone created", "milestone": m})
}

func updateMilestoneHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req milestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var m models.Milestone
	if err := db.First(&m, id).Error; err != nil {
		respondError(c, err)
		return
	}
	if msg := req.apply(&m); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if err := db.Omit("Kpi").Save(&m).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Milestone updated", "milestone": m})
}

func deleteMilestoneHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res := db.Delete(&models.Milestone{}, id)
	if res.Error != nil {
		respondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, gorm.ErrRecordNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Milestone deleted"})
}
