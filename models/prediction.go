package models

import (
	"time"

	"gorm.io/datatypes"
)

type PredictionType string

const (
	PredictionManual   PredictionType = "manual"
	PredictionBulk     PredictionType = "bulk"
	PredictionScenario PredictionType = "scenario"
)

// AiPrediction logs one call to the prediction service or one local simulation.
type AiPrediction struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	PredictionType  PredictionType `gorm:"size:16;not null;index" json:"prediction_type"`
	KpiID           *uint          `gorm:"index" json:"kpi_id"`
	InputParameters datatypes.JSON `json:"input_parameters"`
	Result          datatypes.JSON `json:"result"`
	PredictedRisk   string         `gorm:"size:16;index" json:"predicted_risk"`
	ConfidenceScore float64        `json:"confidence_score"`
	RiskScore       float64        `json:"risk_score"`
	RequestedBy     uint           `gorm:"index;not null" json:"requested_by"`
}
