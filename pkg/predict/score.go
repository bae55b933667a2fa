package predict

import "strings"

const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

var riskScores = map[string]float64{
	RiskLow:    25,
	RiskMedium: 55,
	RiskHigh:   85,
}

var recommendations = map[string][]string{
	RiskLow: {
		"Maintain the current implementation pace",
		"Continue monthly progress reporting",
	},
	RiskMedium: {
		"Review resource allocation with the department",
		"Increase stakeholder engagement activities",
		"Track milestones fortnightly",
	},
	RiskHigh: {
		"Escalate to the head of department and the strategy office",
		"Re-baseline the delivery timeline",
		"Reallocate budget to critical milestones",
		"Hold a weekly recovery review",
	},
}

// ParseRisk normalizes a risk label ("high", " MEDIUM ") to Low, Medium or High.
func ParseRisk(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow, true
	case "medium":
		return RiskMedium, true
	case "high":
		return RiskHigh, true
	}
	return "", false
}

// Assessment is a risk level with its derived score and recommendations.
type Assessment struct {
	PredictedRisk   string   `json:"predicted_risk"`
	Confidence      float64  `json:"confidence"`
	RiskScore       float64  `json:"risk_score"`
	Recommendations []string `json:"recommendations"`
}

func Assess(level string, confidence float64) Assessment {
	return Assessment{
		PredictedRisk:   level,
		Confidence:      confidence,
		RiskScore:       riskScores[level],
		Recommendations: append([]string(nil), recommendations[level]...),
	}
}

// Simulate scores a what-if scenario locally with fixed thresholds, no network.
// Delay is in months.
func Simulate(in Input) Assessment {
	level := RiskLow
	switch {
	case in.Progress < 40 || in.Delay > 6 || in.Success < 30:
		level = RiskHigh
	case in.Progress < 70 || in.Delay > 2 || in.Engagement < 50 || in.Budget > 90:
		level = RiskMedium
	}
	return Assess(level, 0.7)
}
