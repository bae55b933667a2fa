package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/predict"
	"srap/pkg/progress"
)

// Percentage-of-target bands used by the dashboard and alerts.
const (
	onTrackThreshold = 80.0
	atRiskThreshold  = 50.0
)

type kpiHealth struct {
	Total    int `json:"total"`
	OnTrack  int `json:"on_track"`
	AtRisk   int `json:"at_risk"`
	OffTrack int `json:"off_track"`
}

func (h *kpiHealth) add(pct float64) {
	h.Total++
	switch {
	case pct >= onTrackThreshold:
		h.OnTrack++
	case pct >= atRiskThreshold:
		h.AtRisk++
	default:
		h.OffTrack++
	}
}

func visibleActiveKpis(user *models.User) ([]models.Kpi, error) {
	var kpis []models.Kpi
	err := scopeToDepartment(db.Model(&models.Kpi{}), user, "kpis.department_id").
		Where("kpis.status = ?", models.KpiActive).Find(&kpis).Error
	return kpis, err
}

// pendingEntriesQuery counts pending progress entries on KPIs the user can see.
func pendingEntriesQuery(user *models.User) *gorm.DB {
	q := db.Model(&models.KpiProgress{}).
		Joins("JOIN kpis ON kpis.id = kpi_progress.kpi_id").
		Where("kpi_progress.verification_status = ?", models.VerificationPending)
	return scopeToDepartment(q, user, "kpis.department_id")
}

func awaitingApprovalQuery(user *models.User) *gorm.DB {
	q := scopeUploads(db.Model(&models.UploadedFile{}), user)
	return q.Where("uploaded_files.requires_approval = ? AND uploaded_files.status = ? AND uploaded_files.approved_at IS NULL AND uploaded_files.rejected_at IS NULL",
		true, models.UploadCompleted)
}

func dashboardHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	kpis, err := visibleActiveKpis(user)
	if err != nil {
		respondError(c, err)
		return
	}
	var health kpiHealth
	for i := range kpis {
		health.add(kpis[i].Percentage())
	}

	var pendingEntries, awaiting int64
	if err := pendingEntriesQuery(user).Count(&pendingEntries).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := awaitingApprovalQuery(user).Count(&awaiting).Error; err != nil {
		respondError(c, err)
		return
	}

	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	var milestoneCounts []statusCount
	mq := db.Model(&models.Milestone{}).Joins("JOIN kpis ON kpis.id = milestones.kpi_id")
	if err := scopeToDepartment(mq, user, "kpis.department_id").
		Select("milestones.status as status, count(*) as count").Group("milestones.status").
		Scan(&milestoneCounts).Error; err != nil {
		respondError(c, err)
		return
	}

	var recentUploads []models.UploadedFile
	if err := scopeUploads(db.Model(&models.UploadedFile{}), user).
		Order("uploaded_files.created_at desc").Limit(5).Find(&recentUploads).Error; err != nil {
		respondError(c, err)
		return
	}

	var recentPredictions []models.AiPrediction
	pq := db.Model(&models.AiPrediction{})
	if !user.RoleName().CanManageKPIs() {
		pq = pq.Where("requested_by = ?", user.ID)
	}
	if err := pq.Order("created_at desc").Limit(5).Find(&recentPredictions).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kpis":                      health,
		"pending_verifications":     pendingEntries,
		"uploads_awaiting_approval": awaiting,
		"milestones":                milestoneCounts,
		"recent_uploads":            recentUploads,
		"recent_predictions":        recentPredictions,
	})
}

type alert struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Ref      uint   `json:"ref_id"`
}

// buildAlerts derives alerts from current data; nothing is stored.
func buildAlerts(user *models.User, now time.Time) ([]alert, error) {
	out := []alert{}
	kpis, err := visibleActiveKpis(user)
	if err != nil {
		return nil, err
	}
	for _, k := range kpis {
		pct := k.Percentage()
		if k.TargetValue <= 0 || pct >= atRiskThreshold {
			continue
		}
		sev := "medium"
		if pct < 25 {
			sev = "high"
		}
		out = append(out, alert{Type: "kpi_below_target", Severity: sev, Ref: k.ID,
			Message: fmt.Sprintf("KPI %q is at %.1f%% of target", k.Title, pct)})
	}

	var milestones []models.Milestone
	mq := db.Model(&models.Milestone{}).Joins("JOIN kpis ON kpis.id = milestones.kpi_id").
		Where("milestones.due_date < ? AND milestones.status <> ?", now, models.MilestoneCompleted)
	if err := scopeToDepartment(mq, user, "kpis.department_id").Find(&milestones).Error; err != nil {
		return nil, err
	}
	for _, m := range milestones {
		if !m.Overdue(now) {
			continue
		}
		out = append(out, alert{Type: "milestone_overdue", Severity: "high", Ref: m.ID,
			Message: fmt.Sprintf("Milestone %q was due on %s", m.Title, m.DueDate.Format("2006-01-02"))})
	}

	if user.RoleName().CanApprove() || user.RoleName().CanManageKPIs() {
		var uploads []models.UploadedFile
		if err := awaitingApprovalQuery(user).Find(&uploads).Error; err != nil {
			return nil, err
		}
		for _, u := range uploads {
			out = append(out, alert{Type: "upload_awaiting_approval", Severity: "low", Ref: u.ID,
				Message: fmt.Sprintf("Upload %q is awaiting approval", u.OriginalName)})
		}
	}

	var risky []models.AiPrediction
	rq := db.Where("predicted_risk = ? AND created_at >= ?", predict.RiskHigh, now.AddDate(0, 0, -30))
	if !user.RoleName().CanManageKPIs() {
		rq = rq.Where("requested_by = ?", user.ID)
	}
	if err := rq.Order("created_at desc").Limit(20).Find(&risky).Error; err != nil {
		return nil, err
	}
	for _, p := range risky {
		out = append(out, alert{Type: "high_risk_prediction", Severity: "high", Ref: p.ID,
			Message: fmt.Sprintf("High risk predicted on %s", p.CreatedAt.Format("2006-01-02"))})
	}
	return out, nil
}

func alertsHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	alerts, err := buildAlerts(user, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func chatbotHandler(c *gin.Context) {
	user, _ := getUserFromContext(c)
	var req struct {
		Message string `json:"message" binding:"required,max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reply, suggestions, err := chatbotReply(user, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply, "suggestions": suggestions})
}

var chatbotSuggestions = []string{"KPI status", "Pending approvals", "How do I upload progress?", "Risk prediction"}

// chatbotReply answers from a fixed keyword script. Topic keywords match word
// prefixes ("approv" matches "approvals"); greetings match whole words only.
func chatbotReply(user *models.User, message string) (string, []string, error) {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	has := func(prefixes ...string) bool {
		for _, w := range words {
			for _, p := range prefixes {
				if strings.HasPrefix(w, p) {
					return true
				}
			}
		}
		return false
	}
	is := func(keywords ...string) bool {
		for _, w := range words {
			for _, k := range keywords {
				if w == k {
					return true
				}
			}
		}
		return false
	}
	switch {
	case has("pending", "approv", "verif"):
		var entries, uploads int64
		if err := pendingEntriesQuery(user).Count(&entries).Error; err != nil {
			return "", nil, err
		}
		if err := awaitingApprovalQuery(user).Count(&uploads).Error; err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("There are %d progress entries pending verification and %d uploads awaiting approval.", entries, uploads), nil, nil
	case has("upload", "template", "excel", "spreadsheet"):
		return fmt.Sprintf("Download a template from Uploads, fill one row per entry and upload it as xlsx, xls or csv (max 10 MB). "+
			"KPI progress needs the columns %s. Milestone progress needs %s.",
			strings.Join(progress.RequiredHeaders(models.FileTypeKpiProgress), ", "),
			strings.Join(progress.RequiredHeaders(models.FileTypeMilestoneProgress), ", ")), nil, nil
	case has("risk", "predict", "simulat"):
		return "Open Predictions and enter progress, budget utilisation, delay in months, engagement and success rate. " +
			"The service returns a Low, Medium or High risk level with recommendations. Use Simulate to try what-if scenarios.", nil, nil
	case has("kpi", "status", "progress", "target"):
		kpis, err := visibleActiveKpis(user)
		if err != nil {
			return "", nil, err
		}
		var h kpiHealth
		for i := range kpis {
			h.add(kpis[i].Percentage())
		}
		return fmt.Sprintf("You have %d active KPIs: %d on track, %d at risk and %d off track.", h.Total, h.OnTrack, h.AtRisk, h.OffTrack), nil, nil
	case is("hello", "hi", "help", "hey"):
		name := user.Name
		if name == "" {
			name = user.Username
		}
		return fmt.Sprintf("Hello %s. I can tell you about KPI status, pending approvals, uploads and risk predictions.", name), chatbotSuggestions, nil
	default:
		return "Sorry, I did not understand that. Try one of the suggestions.", chatbotSuggestions, nil
	}
}
