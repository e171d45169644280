package models

import (
	"time"

	"infra-risk-api/risk"
)

type Report struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Latitude  float64   `gorm:"column:latitude" json:"latitude"`
	Longitude float64   `gorm:"column:longitude" json:"longitude"`
	Severity  string    `gorm:"column:severity" json:"severity"`
	Category  string    `gorm:"column:category" json:"category"`
	Status    string    `gorm:"column:status" json:"status"`
	City      *string   `gorm:"column:city" json:"city"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Report) TableName() string { return "reports" }

func (r Report) ToRisk() risk.Report {
	return risk.Report{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Severity:  risk.ParseSeverity(r.Severity),
	}
}
