package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"srap/models"
	"srap/pkg/pagination"
	"srap/pkg/predict"
)

type predictRequest struct {
	KpiID *uint `json:"kpi_id"`
	predict.Input
}

func bindPredictRequest(c *gin.Context) (*predictRequest, bool) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if err := predict.ValidateInput(req.Input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if req.KpiID != nil {
		var kpi models.Kpi
		if err := db.First(&kpi, *req.KpiID).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kpi not found"})
			return nil, false
		}
	}
	return &req, true
}

func predictHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	req, ok := bindPredictRequest(c)
	if !ok {
		return
	}
	rec, a, err := predictions.Predict(c.Request.Context(), user, req.KpiID, req.Input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prediction completed", "prediction": rec, "assessment": a})
}

func simulateHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	req, ok := bindPredictRequest(c)
	if !ok {
		return
	}
	rec, a, err := predictions.Simulate(c.Request.Context(), user, req.KpiID, req.Input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Scenario simulated", "prediction": rec, "assessment": a})
}

// predictFileHandler forwards a spreadsheet of feature rows to the bulk prediction endpoint.
func predictFileHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > cfg.UploadMaxBytes {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "file too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open uploaded file"})
		return
	}
	defer f.Close()
	rec, sum, err := predictions.PredictFile(c.Request.Context(), user, file.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bulk prediction completed", "prediction": rec, "summary": sum})
}

// listPredictionsHandler returns the caller's predictions; admins see all of them.
func listPredictionsHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	p := pagination.Parse(c, "created_at", "desc", pagination.DefaultOpts)
	q := db.Model(&models.AiPrediction{})
	if !user.RoleName().CanManageKPIs() {
		q = q.Where("requested_by = ?", user.ID)
	}
	if v := c.Query("prediction_type"); v != "" {
		q = q.Where("prediction_type = ?", v)
	}
	if v := c.Query("kpi_id"); v != "" {
		q = q.Where("kpi_id = ?", v)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}
	var items []models.AiPrediction
	if err := q.Order(p.OrderClause(map[string]string{"created_at": "created_at", "risk_score": "risk_score"}, "created_at")).
		Limit(p.Limit()).Offset(p.Offset()).Find(&items).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "meta": p.Meta(total)})
}
