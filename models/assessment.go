package models

import (
	"time"

	"infra-risk-api/risk"
)

// RiskAssessment is one stored scorer result. Rows are written by the scorer
// worker and only read by the API.
type RiskAssessment struct {
	TS                 time.Time `gorm:"column:ts;primaryKey" json:"ts"`
	ProjectID          string    `gorm:"column:project_id;primaryKey" json:"project_id"`
	RunID              string    `gorm:"column:run_id" json:"run_id"`
	PredictedRisk      int       `gorm:"column:predicted_risk" json:"predicted_risk"`
	RiskLabel          string    `gorm:"column:risk_label" json:"risk_label"`
	ForecastReason     string    `gorm:"column:forecast_reason" json:"forecast_reason"`
	AgeFactor          float64   `gorm:"column:age_factor" json:"age_factor"`
	ClusterFactor      float64   `gorm:"column:cluster_factor" json:"cluster_factor"`
	ContractorFactor   float64   `gorm:"column:contractor_factor" json:"contractor_factor"`
	SeasonalMultiplier float64   `gorm:"column:seasonal_multiplier" json:"seasonal_multiplier"`
}

func (RiskAssessment) TableName() string { return "risk_assessments" }

// NewRiskAssessment flattens a scored project into a history row.
func NewRiskAssessment(runID string, ts time.Time, pr risk.ProjectRisk) RiskAssessment {
	a := pr.Prediction
	return RiskAssessment{
		TS:                 ts,
		ProjectID:          pr.ProjectID,
		RunID:              runID,
		PredictedRisk:      a.PredictedRisk,
		RiskLabel:          string(a.RiskLabel),
		ForecastReason:     a.ForecastReason,
		AgeFactor:          a.Factors.Age,
		ClusterFactor:      a.Factors.Cluster,
		ContractorFactor:   a.Factors.Contractor,
		SeasonalMultiplier: a.Factors.SeasonalMultiplier,
	}
}
