package models

import (
	"time"

	"infra-risk-api/risk"
)

type GovernmentProject struct {
	ID             string     `gorm:"column:id;primaryKey" json:"id"`
	Name           string     `gorm:"column:name" json:"name"`
	ContractorName *string    `gorm:"column:contractor_name" json:"contractor_name"`
	CompletionDate *time.Time `gorm:"column:completion_date" json:"completion_date"`
	Latitude       *float64   `gorm:"column:latitude" json:"latitude"`
	Longitude      *float64   `gorm:"column:longitude" json:"longitude"`
	City           *string    `gorm:"column:city" json:"city"`
	Status         string     `gorm:"column:status" json:"status"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (GovernmentProject) TableName() string { return "government_projects" }

// ToRisk converts the row into the engine's project view.
func (p GovernmentProject) ToRisk() risk.Project {
	rp := risk.Project{
		ID:             p.ID,
		Name:           p.Name,
		CompletionDate: p.CompletionDate,
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
	}
	if p.ContractorName != nil {
		rp.ContractorName = *p.ContractorName
	}
	return rp
}
