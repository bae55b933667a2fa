package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/predict"
	"srap/pkg/progress"
	"srap/pkg/storage"
)

func setupRoutes(r *gin.Engine) {
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())
	r.Use(accessLogMiddleware())

	r.GET("/healthcheck", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.POST("/register", registerHandler)
	api.POST("/login", loginHandler)
	api.POST("/refresh", refreshHandler)
	api.POST("/revoke_refresh", revokeRefreshHandler)

	authGroup := api.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.PUT("/users/:id/role", requireRole(models.RoleName.CanManageKPIs), assignRoleHandler)

	authGroup.GET("/departments", listDepartmentsHandler)
	authGroup.POST("/departments", requireRole(models.RoleName.CanManageKPIs), createDepartmentHandler)
	authGroup.GET("/pillars", listPillarsHandler)
	authGroup.POST("/pillars", requireRole(models.RoleName.CanManageKPIs), createPillarHandler)

	authGroup.GET("/kpis", listKpisHandler)
	authGroup.POST("/kpis", requireRole(models.RoleName.CanManageKPIs), createKpiHandler)
	authGroup.GET("/kpis/:id", getKpiHandler)
	authGroup.PUT("/kpis/:id", requireRole(models.RoleName.CanManageKPIs), updateKpiHandler)
	authGroup.DELETE("/kpis/:id", requireRole(models.RoleName.CanManageKPIs), archiveKpiHandler)
	authGroup.GET("/kpis/:id/progress", listKpiProgressHandler)
	authGroup.POST("/kpis/:id/progress", requireRole(models.RoleName.CanUpload), createKpiProgressHandler)
	authGroup.POST("/progress/:id/verify", requireRole(models.RoleName.CanApprove), verifyProgressHandler)
	authGroup.GET("/kpis/:id/milestones", listMilestonesHandler)
	authGroup.POST("/kpis/:id/milestones", requireRole(models.RoleName.CanManageKPIs), createMilestoneHandler)
	authGroup.PUT("/milestones/:id", requireRole(models.RoleName.CanManageKPIs), updateMilestoneHandler)
	authGroup.DELETE("/milestones/:id", requireRole(models.RoleName.CanManageKPIs), deleteMilestoneHandler)

	authGroup.POST("/uploads", requireRole(models.RoleName.CanUpload), storeUploadHandler)
	authGroup.GET("/uploads", listUploadsHandler)
	authGroup.GET("/uploads/:id", getUploadHandler)
	authGroup.GET("/uploads/:id/download", downloadUploadHandler)
	authGroup.POST("/uploads/:id/approve", approveUploadHandler)
	authGroup.POST("/uploads/:id/reject", rejectUploadHandler)
	authGroup.DELETE("/uploads/:id", requireRole(models.RoleName.CanDeleteUploads), deleteUploadHandler)
	authGroup.GET("/templates/:type", downloadTemplateHandler)

	authGroup.GET("/predictions", listPredictionsHandler)
	authGroup.POST("/predictions", requireRole(models.RoleName.CanPredict), predictHandler)
	authGroup.POST("/predictions/file", requireRole(models.RoleName.CanPredict), predictFileHandler)
	authGroup.POST("/predictions/simulate", requireRole(models.RoleName.CanPredict), simulateHandler)

	authGroup.GET("/dashboard", dashboardHandler)
	authGroup.GET("/alerts", alertsHandler)
	authGroup.POST("/chatbot", chatbotHandler)
}

func corsMiddleware() gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = cfg.CORSOrigins
		conf.AllowCredentials = true
	}
	return cors.New(conf)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		appLog.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString("request_id"),
		)
	}
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		token, err := jwt.Parse(authHeader[7:], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			return
		}
		username, _ := claims["username"].(string)
		// role and department come from the database, not the token
		var user models.User
		if err := db.Preload("Role").Where("username = ?", username).First(&user).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		c.Set("username", user.Username)
		c.Set("role", string(user.RoleName()))
		c.Set("user", &user)
		c.Next()
	}
}

// requireRole aborts with 403 unless the current user's role passes check.
func requireRole(check func(models.RoleName) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := getUserFromContext(c)
		if !ok || !check(user.RoleName()) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": progress.ErrForbidden.Error()})
			return
		}
		c.Next()
	}
}

// getUserFromContext returns the user loaded by jwtAuthMiddleware.
func getUserFromContext(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}

// respondError maps domain errors onto status codes. Unknown errors are logged
// and reported as a generic 500.
func respondError(c *gin.Context, err error) {
	var fe *progress.FileError
	var dup *progress.DuplicateEntryError
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, progress.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": progress.ErrForbidden.Error()})
	case errors.Is(err, progress.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, gin.H{"error": dup.Error()})
	case errors.Is(err, progress.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, progress.ErrReasonRequired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &fe):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fe.Msg})
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, predict.ErrServiceFailure):
		c.JSON(http.StatusBadGateway, gin.H{"error": predict.ErrServiceFailure.Error()})
	default:
		appLog.Error("request failed", "path", c.FullPath(), "request_id", c.GetString("request_id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func paramID(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(n), true
}

func meHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing user"})
		return
	}
	if user.DepartmentID != nil {
		var d models.Department
		if err := db.First(&d, *user.DepartmentID).Error; err == nil {
			user.Department = &d
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"user": user,
		"capabilities": gin.H{
			"manage_kpis":    user.RoleName().CanManageKPIs(),
			"upload":         user.RoleName().CanUpload(),
			"approve":        user.RoleName().CanApprove(),
			"delete_uploads": user.RoleName().CanDeleteUploads(),
			"restricted":     user.RoleName().IsRestricted(),
		},
	})
}

func registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name"`
		Email    string `json:"email" binding:"omitempty,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := RegisterUser(req.Username, req.Password, req.Name, req.Email)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully", "id": user.ID})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	tokenString, err := issueAccessToken(&user, accessTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refreshToken, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": tokenString, "refresh_token": refreshToken, "role": user.RoleName()})
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil || !rt.Usable(time.Now()) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := db.Preload("Role").First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	tokenString, err := issueAccessToken(&user, 15*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	db.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).Update("revoked", true)
	newRT, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

// revokeRefreshHandler revokes a given refresh token (useful on logout)
func revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	if err := db.Model(rt).Update("revoked", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

// assignRoleHandler sets a user's role and department. HODs and data officers need a department.
func assignRoleHandler(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Role         string `json:"role" binding:"required"`
		DepartmentID *uint  `json:"department_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, valid := models.ParseRoleName(req.Role)
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	if (name == models.RoleHOD || name == models.RoleDataOfficer) && req.DepartmentID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "department_id is required for this role"})
		return
	}
	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		respondError(c, err)
		return
	}
	if req.DepartmentID != nil {
		var d models.Department
		if err := db.First(&d, *req.DepartmentID).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "department not found"})
			return
		}
	}
	var role models.Role
	if err := db.Where("name = ?", name).First(&role).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := db.Model(&user).Updates(map[string]interface{}{"role_id": role.ID, "department_id": req.DepartmentID}).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "role updated", "role": name, "department_id": req.DepartmentID})
}
