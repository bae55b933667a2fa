package predict

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"srap/models"
)

func TestClientPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict_api", r.URL.Path)
		var in Input
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, 35.0, in.Progress)
		_, _ = w.Write([]byte(`{"predicted_risk":"high","confidence":0.91}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL+"/", time.Second).Predict(context.Background(), Input{Progress: 35})
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, p.PredictedRisk)
	assert.Equal(t, 0.91, p.Confidence)
}

func TestClientPredictFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"malformed json", http.StatusOK, `<html>`},
		{"missing confidence", http.StatusOK, `{"predicted_risk":"Low"}`},
		{"unknown level", http.StatusOK, `{"predicted_risk":"Severe","confidence":0.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			_, err := NewClient(srv.URL, time.Second).Predict(context.Background(), Input{})
			assert.ErrorIs(t, err, ErrServiceFailure)
		})
	}
}

func TestClientPredictFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict_file_api", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, "batch.csv", hdr.Filename)
		assert.Equal(t, "progress,budget\n10,20\n", string(b))
		_, _ = w.Write([]byte(`{"status":"success","predictions":[{"predicted_risk":"Low"},{"predicted_risk":"High"},{"predicted_risk":"High"}]}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).PredictFile(context.Background(), "batch.csv", strings.NewReader("progress,budget\n10,20\n"))
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Len(t, res.Predictions, 3)
}

func TestAssessLookup(t *testing.T) {
	assert.Equal(t, 25.0, Assess(RiskLow, 0.8).RiskScore)
	assert.Equal(t, 55.0, Assess(RiskMedium, 0.8).RiskScore)
	a := Assess(RiskHigh, 0.8)
	assert.Equal(t, 85.0, a.RiskScore)
	assert.NotEmpty(t, a.Recommendations)
}

func TestSimulate(t *testing.T) {
	assert.Equal(t, RiskLow, Simulate(Input{Progress: 85, Budget: 60, Delay: 0, Engagement: 80, Success: 90}).PredictedRisk)
	assert.Equal(t, RiskMedium, Simulate(Input{Progress: 60, Budget: 60, Engagement: 80, Success: 90}).PredictedRisk)
	assert.Equal(t, RiskHigh, Simulate(Input{Progress: 85, Delay: 9, Engagement: 80, Success: 90}).PredictedRisk)
}

type stubPredictor struct {
	pred *Prediction
	err  error
}

func (s stubPredictor) Predict(context.Context, Input) (*Prediction, error) { return s.pred, s.err }
func (s stubPredictor) PredictFile(context.Context, string, io.Reader) (*FileResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &FileResult{Status: "success", Predictions: []map[string]interface{}{
		{"predicted_risk": "Medium"}, {"predicted_risk": "low"}, {"note": "no label"},
	}}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func TestServiceRecordsPredictions(t *testing.T) {
	db := newTestDB(t)
	user := &models.User{Username: "analyst", HashedPassword: []byte("x")}
	require.NoError(t, db.Create(user).Error)
	ctx := context.Background()

	svc := NewService(db, stubPredictor{pred: &Prediction{PredictedRisk: RiskMedium, Confidence: 0.6}}, nil)
	rec, a, err := svc.Predict(ctx, user, nil, Input{Progress: 50, Budget: 40, Engagement: 70, Success: 60})
	require.NoError(t, err)
	assert.Equal(t, models.PredictionManual, rec.PredictionType)
	assert.Equal(t, 55.0, a.RiskScore)
	assert.Equal(t, 55.0, rec.RiskScore)

	rec, sum, err := svc.PredictFile(ctx, user, "batch.csv", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, models.PredictionBulk, rec.PredictionType)
	assert.Equal(t, RiskMedium, rec.PredictedRisk)
	assert.Equal(t, map[string]int{RiskMedium: 1, RiskLow: 1}, sum.RiskCounts)

	rec, _, err = svc.Simulate(ctx, user, nil, Input{Progress: 10})
	require.NoError(t, err)
	assert.Equal(t, models.PredictionScenario, rec.PredictionType)
	assert.Equal(t, RiskHigh, rec.PredictedRisk)

	_, _, err = svc.Simulate(ctx, user, nil, Input{Progress: 140})
	assert.Error(t, err)

	var n int64
	require.NoError(t, db.Model(&models.AiPrediction{}).Count(&n).Error)
	assert.EqualValues(t, 3, n)
}

func TestServiceHidesServiceErrors(t *testing.T) {
	db := newTestDB(t)
	user := &models.User{Username: "analyst", HashedPassword: []byte("x")}
	require.NoError(t, db.Create(user).Error)

	svc := NewService(db, stubPredictor{err: errors.New("dial tcp 127.0.0.1:5000: connection refused")}, nil)
	_, _, err := svc.Predict(context.Background(), user, nil, Input{})
	assert.Equal(t, ErrServiceFailure, err)
}
