package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/logger"
)

var validate = validator.New()

// Predictor is the part of Client the service needs; tests swap it out.
type Predictor interface {
	Predict(ctx context.Context, in Input) (*Prediction, error)
	PredictFile(ctx context.Context, filename string, r io.Reader) (*FileResult, error)
}

// Service runs predictions and records each one as an AiPrediction.
type Service struct {
	DB     *gorm.DB
	Client Predictor
	Log    *logger.Logger
}

func NewService(db *gorm.DB, client Predictor, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{DB: db, Client: client, Log: log}
}

// ValidateInput checks that percentages are within 0..100 and delay is not negative.
func ValidateInput(in Input) error {
	return validate.Struct(in)
}

func (s *Service) Predict(ctx context.Context, user *models.User, kpiID *uint, in Input) (*models.AiPrediction, *Assessment, error) {
	if err := ValidateInput(in); err != nil {
		return nil, nil, err
	}
	p, err := s.Client.Predict(ctx, in)
	if err != nil {
		s.Log.Error("prediction service call failed", "endpoint", "predict_api", "error", err)
		return nil, nil, ErrServiceFailure
	}
	a := Assess(p.PredictedRisk, p.Confidence)
	rec, err := s.record(ctx, models.PredictionManual, user, kpiID, in, a)
	return rec, &a, err
}

// BulkSummary is stored as the result of a file prediction.
type BulkSummary struct {
	Status      string                   `json:"status"`
	Predictions []map[string]interface{} `json:"predictions"`
	RiskCounts  map[string]int           `json:"risk_counts"`
}

func (s *Service) PredictFile(ctx context.Context, user *models.User, filename string, r io.Reader) (*models.AiPrediction, *BulkSummary, error) {
	res, err := s.Client.PredictFile(ctx, filename, r)
	if err != nil {
		s.Log.Error("prediction service call failed", "endpoint", "predict_file_api", "error", err)
		return nil, nil, ErrServiceFailure
	}
	sum := &BulkSummary{Status: res.Status, Predictions: res.Predictions, RiskCounts: map[string]int{}}
	worst := ""
	for _, p := range res.Predictions {
		label, _ := p["predicted_risk"].(string)
		level, ok := ParseRisk(label)
		if !ok {
			continue
		}
		sum.RiskCounts[level]++
		if riskScores[level] > riskScores[worst] {
			worst = level
		}
	}
	rec := &models.AiPrediction{
		PredictionType:  models.PredictionBulk,
		InputParameters: mustJSON(map[string]interface{}{"filename": filename, "rows": len(res.Predictions)}),
		Result:          mustJSON(sum),
		PredictedRisk:   worst,
		RiskScore:       riskScores[worst],
		RequestedBy:     user.ID,
	}
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, nil, fmt.Errorf("save prediction: %w", err)
	}
	return rec, sum, nil
}

// Simulate runs the local scenario rules and records the outcome.
func (s *Service) Simulate(ctx context.Context, user *models.User, kpiID *uint, in Input) (*models.AiPrediction, *Assessment, error) {
	if err := ValidateInput(in); err != nil {
		return nil, nil, err
	}
	a := Simulate(in)
	rec, err := s.record(ctx, models.PredictionScenario, user, kpiID, in, a)
	return rec, &a, err
}

func (s *Service) record(ctx context.Context, typ models.PredictionType, user *models.User, kpiID *uint, in Input, a Assessment) (*models.AiPrediction, error) {
	rec := &models.AiPrediction{
		PredictionType:  typ,
		KpiID:           kpiID,
		InputParameters: mustJSON(in),
		Result:          mustJSON(a),
		PredictedRisk:   a.PredictedRisk,
		ConfidenceScore: a.Confidence,
		RiskScore:       a.RiskScore,
		RequestedBy:     user.ID,
	}
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("save prediction: %w", err)
	}
	return rec, nil
}

func mustJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
