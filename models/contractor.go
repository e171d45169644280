package models

import "time"

type ContractorRiskProfile struct {
	ID              string    `gorm:"column:id;primaryKey" json:"id"`
	ContractorName  string    `gorm:"column:contractor_name" json:"contractor_name"`
	TotalProjects   int       `gorm:"column:total_projects" json:"total_projects"`
	FlaggedProjects int       `gorm:"column:flagged_projects" json:"flagged_projects"`
	RiskScore       float64   `gorm:"column:risk_score" json:"risk_score"`
	IsBlacklisted   bool      `gorm:"column:is_blacklisted" json:"is_blacklisted"`
	LastUpdated     time.Time `gorm:"column:last_updated" json:"last_updated"`
}

func (ContractorRiskProfile) TableName() string { return "contractor_risk_profiles" }
