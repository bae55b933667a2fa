package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srap/models"
	"srap/pkg/logger"
	"srap/pkg/progress"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// setupTestServer runs against in-memory sqlite. Set DB_DSN_TEST=1 (with DB_DSN) to use Postgres instead.
func setupTestServer(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg = Config{
		DBDriver:         "sqlite",
		DBDSN:            fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		AutoMigrate:      true,
		UploadBase:       t.TempDir(),
		StorageDriver:    "local",
		AIServiceURL:     "http://127.0.0.1:1",
		AIServiceTimeout: time.Second,
		UploadMaxBytes:   progress.DefaultMaxBytes,
		ErrorPolicy:      progress.PolicyBestEffort,
	}
	if os.Getenv("DB_DSN_TEST") == "1" {
		cfg.DBDriver = "postgres"
		cfg.DBDSN = os.Getenv("DB_DSN")
	}
	appLog = logger.Nop()
	jwtSecret = []byte("test-secret")
	initDB()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, initServices(ctx))
	r := gin.New()
	setupRoutes(r)
	return r
}

func login(t *testing.T, r http.Handler, username, password string) string {
	resp := performRequest(r, http.MethodPost, "/api/login", jsonBody(t, map[string]string{"username": username, "password": password}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	token, _ := decode(t, resp)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// newUser registers username and lets the admin assign role and department.
func newUser(t *testing.T, r http.Handler, adminToken, username, role string, deptID uint) string {
	resp := performRequest(r, http.MethodPost, "/api/register", jsonBody(t, map[string]string{"username": username, "password": "pass123"}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	id := uint(decode(t, resp)["id"].(float64))

	body := map[string]interface{}{"role": role}
	if deptID != 0 {
		body["department_id"] = deptID
	}
	resp = performRequest(r, http.MethodPut, fmt.Sprintf("/api/users/%d/role", id), jsonBody(t, body), adminToken, "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return login(t, r, username, "pass123")
}

func createDepartment(t *testing.T, r http.Handler, token, name, code string) uint {
	resp := performRequest(r, http.MethodPost, "/api/departments", jsonBody(t, map[string]string{"name": name, "code": code}), token, "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return uint(decode(t, resp)["id"].(float64))
}

func uploadCSV(t *testing.T, r http.Handler, token, fileType, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "progress.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("file_type", fileType))
	require.NoError(t, w.Close())
	return performRequest(r, http.MethodPost, "/api/uploads", &buf, token, w.FormDataContentType())
}

func TestUploadApprovalFlow(t *testing.T) {
	r := setupTestServer(t)
	adminToken := login(t, r, "admin", "admin123")

	deptA := createDepartment(t, r, adminToken, "Digital Economy", "DE")
	deptB := createDepartment(t, r, adminToken, "Standards", "ST")

	resp := performRequest(r, http.MethodPost, "/api/kpis", jsonBody(t, map[string]interface{}{
		"title": "Broadband penetration", "department_id": deptA, "target_value": 100, "unit": "%",
	}), adminToken, "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	kpiID := uint(decode(t, resp)["kpi"].(map[string]interface{})["id"].(float64))

	officer := newUser(t, r, adminToken, "officer", "data_officer", deptA)
	hod := newUser(t, r, adminToken, "hod", "hod", deptA)
	hodB := newUser(t, r, adminToken, "hod_b", "hod", deptB)
	staff := newUser(t, r, adminToken, "staff", "staff", 0)

	csv := fmt.Sprintf("KPI ID,Reporting Date,Current Value\n%d,2024-01-15,40\n9999,2024-01-15,10\n", kpiID)
	resp = uploadCSV(t, r, officer, "kpi_progress", csv)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	out := decode(t, resp)
	assert.Equal(t, true, out["requires_approval"])
	results := out["results"].(map[string]interface{})
	assert.EqualValues(t, 1, results["success"])
	assert.EqualValues(t, 1, results["errors"])
	uploadID := uint(out["upload"].(map[string]interface{})["id"].(float64))

	// staff cannot upload at all
	resp = uploadCSV(t, r, staff, "kpi_progress", csv)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	// pending entries do not move the KPI yet
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/api/kpis/%d", kpiID), nil, hod, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.EqualValues(t, 0, decode(t, resp)["kpi"].(map[string]interface{})["current_value"])

	approvePath := fmt.Sprintf("/api/uploads/%d/approve", uploadID)
	resp = performRequest(r, http.MethodPost, approvePath, nil, hodB, "")
	assert.Equal(t, http.StatusForbidden, resp.Code, "other department's HOD")

	resp = performRequest(r, http.MethodPost, approvePath, nil, officer, "")
	assert.Equal(t, http.StatusForbidden, resp.Code, "uploader cannot approve")

	resp = performRequest(r, http.MethodPost, approvePath, nil, hod, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.EqualValues(t, 1, decode(t, resp)["approved_count"])

	resp = performRequest(r, http.MethodPost, approvePath, nil, hod, "")
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/api/kpis/%d", kpiID), nil, hod, "")
	require.Equal(t, http.StatusOK, resp.Code)
	got := decode(t, resp)
	assert.EqualValues(t, 40, got["kpi"].(map[string]interface{})["current_value"])
	assert.EqualValues(t, 40, got["percentage"])

	// department B cannot see department A's KPI
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/api/kpis/%d", kpiID), nil, hodB, "")
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = performRequest(r, http.MethodGet, "/api/dashboard", nil, hod, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	kpis := decode(t, resp)["kpis"].(map[string]interface{})
	assert.EqualValues(t, 1, kpis["total"])
	assert.EqualValues(t, 1, kpis["off_track"])
}

func TestUploadRejectsBadHeaders(t *testing.T) {
	r := setupTestServer(t)
	adminToken := login(t, r, "admin", "admin123")

	resp := uploadCSV(t, r, adminToken, "kpi_progress", "KPI,Value\n1,2\n")
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code, resp.Body.String())
	out := decode(t, resp)
	assert.Contains(t, out["error"], "Missing required columns: KPI ID, Reporting Date, Current Value")
	assert.Equal(t, "failed", out["upload"].(map[string]interface{})["status"])
}

func TestTemplateDownload(t *testing.T) {
	r := setupTestServer(t)
	token := login(t, r, "admin", "admin123")

	for i := 0; i < 2; i++ {
		resp := performRequest(r, http.MethodGet, "/api/templates/milestone_progress", nil, token, "")
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, xlsxContentType, resp.Header().Get("Content-Type"))
		assert.Contains(t, resp.Header().Get("Content-Disposition"), "milestone_progress_template.xlsx")
		assert.NotZero(t, resp.Body.Len())
	}

	resp := performRequest(r, http.MethodGet, "/api/templates/budget", nil, token, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAuthRequired(t *testing.T) {
	r := setupTestServer(t)

	resp := performRequest(r, http.MethodGet, "/api/kpis", nil, "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(r, http.MethodGet, "/api/kpis", nil, "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(r, http.MethodPost, "/api/login", jsonBody(t, map[string]string{"username": "admin", "password": "wrong"}), "", "application/json")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRefreshTokenRotation(t *testing.T) {
	r := setupTestServer(t)
	resp := performRequest(r, http.MethodPost, "/api/login", jsonBody(t, map[string]string{"username": "admin", "password": "admin123"}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code)
	rt := decode(t, resp)["refresh_token"].(string)

	resp = performRequest(r, http.MethodPost, "/api/refresh", jsonBody(t, map[string]string{"refresh_token": rt}), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.NotEqual(t, rt, decode(t, resp)["refresh_token"])

	// the old token was rotated out
	resp = performRequest(r, http.MethodPost, "/api/refresh", jsonBody(t, map[string]string{"refresh_token": rt}), "", "application/json")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestChatbotReplies(t *testing.T) {
	r := setupTestServer(t)
	token := login(t, r, "admin", "admin123")

	resp := performRequest(r, http.MethodPost, "/api/chatbot", jsonBody(t, map[string]string{"message": "How do I upload a template?"}), token, "application/json")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, decode(t, resp)["reply"], "KPI ID, Reporting Date, Current Value")

	resp = performRequest(r, http.MethodPost, "/api/chatbot", jsonBody(t, map[string]string{"message": "zzz"}), token, "application/json")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, decode(t, resp)["suggestions"])
}

func TestChatbotReplyKeywordMatching(t *testing.T) {
	user := &models.User{Username: "amina"}
	tests := []struct {
		message  string
		greeting bool
	}{
		{"Hi there", true},
		{"hello!", true},
		{"what is this", false},
		{"which one", false},
		{"thinking", false},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			reply, suggestions, err := chatbotReply(user, tt.message)
			require.NoError(t, err)
			assert.NotEmpty(t, suggestions)
			assert.Equal(t, tt.greeting, strings.HasPrefix(reply, "Hello amina"), reply)
		})
	}

	reply, _, err := chatbotReply(user, "Where do I get the Excel templates?")
	require.NoError(t, err)
	assert.Contains(t, reply, "Milestone progress needs")
}

func TestDashboardReportsDatabaseErrors(t *testing.T) {
	r := setupTestServer(t)
	token := login(t, r, "admin", "admin123")
	require.NoError(t, db.Migrator().DropTable(&models.AiPrediction{}))

	resp := performRequest(r, http.MethodGet, "/api/dashboard", nil, token, "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "internal server error", decode(t, resp)["error"])

	resp = performRequest(r, http.MethodGet, "/api/alerts", nil, token, "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}
