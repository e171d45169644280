package services

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"gorm.io/gorm"

	"infra-risk-api/models"
)

// DataSource is the read side the risk service depends on.
type DataSource interface {
	ScorableProjects(ctx context.Context) ([]models.GovernmentProject, error)
	Reports(ctx context.Context) ([]models.Report, error)
	ContractorProfiles(ctx context.Context) ([]models.ContractorRiskProfile, error)
	Project(ctx context.Context, id string) (models.GovernmentProject, error)
	ReportsNear(ctx context.Context, lat, lng, delta float64) ([]models.Report, error)
	AssessmentHistory(ctx context.Context, projectID string, before *time.Time, limit int) ([]models.RiskAssessment, error)
}

// Store reads projects, reports, profiles and stored assessments through gorm.
// Every read is retried according to the policy.
type Store struct {
	db     *gorm.DB
	policy RetryPolicy
}

func NewStore(db *gorm.DB, policy RetryPolicy) *Store {
	return &Store{db: db, policy: policy}
}

func (s *Store) ScorableProjects(ctx context.Context) ([]models.GovernmentProject, error) {
	return withRetry(ctx, s.policy, "scorable_projects", func(ctx context.Context) ([]models.GovernmentProject, error) {
		var rows []models.GovernmentProject
		err := s.db.WithContext(ctx).
			Where("latitude IS NOT NULL AND longitude IS NOT NULL").
			Order("id").
			Find(&rows).Error
		if err != nil {
			return nil, eris.Wrap(err, "store: list projects")
		}
		return rows, nil
	})
}

func (s *Store) Reports(ctx context.Context) ([]models.Report, error) {
	return withRetry(ctx, s.policy, "reports", func(ctx context.Context) ([]models.Report, error) {
		var rows []models.Report
		if err := s.db.WithContext(ctx).Select("id", "latitude", "longitude", "severity").Find(&rows).Error; err != nil {
			return nil, eris.Wrap(err, "store: list reports")
		}
		return rows, nil
	})
}

func (s *Store) ContractorProfiles(ctx context.Context) ([]models.ContractorRiskProfile, error) {
	return withRetry(ctx, s.policy, "contractor_profiles", func(ctx context.Context) ([]models.ContractorRiskProfile, error) {
		var rows []models.ContractorRiskProfile
		if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
			return nil, eris.Wrap(err, "store: list contractor profiles")
		}
		return rows, nil
	})
}

func (s *Store) Project(ctx context.Context, id string) (models.GovernmentProject, error) {
	return withRetry(ctx, s.policy, "project", func(ctx context.Context) (models.GovernmentProject, error) {
		var row models.GovernmentProject
		if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
			return row, eris.Wrapf(err, "store: get project %s", id)
		}
		return row, nil
	})
}

// ReportsNear pre-filters reports to the square around (lat, lng). The
// engine's strict comparison is applied again on the result.
func (s *Store) ReportsNear(ctx context.Context, lat, lng, delta float64) ([]models.Report, error) {
	return withRetry(ctx, s.policy, "reports_near", func(ctx context.Context) ([]models.Report, error) {
		var rows []models.Report
		err := s.db.WithContext(ctx).
			Select("id", "latitude", "longitude", "severity").
			Where("ABS(latitude - ?) < ? AND ABS(longitude - ?) < ?", lat, delta, lng, delta).
			Order("created_at").
			Find(&rows).Error
		if err != nil {
			return nil, eris.Wrap(err, "store: list nearby reports")
		}
		return rows, nil
	})
}

func (s *Store) AssessmentHistory(ctx context.Context, projectID string, before *time.Time, limit int) ([]models.RiskAssessment, error) {
	return withRetry(ctx, s.policy, "assessment_history", func(ctx context.Context) ([]models.RiskAssessment, error) {
		query := s.db.WithContext(ctx).
			Model(&models.RiskAssessment{}).
			Where("project_id = ?", projectID).
			Order("ts DESC").
			Limit(limit)
		if before != nil {
			query = query.Where("ts < ?", *before)
		}

		var rows []models.RiskAssessment
		if err := query.Find(&rows).Error; err != nil {
			return nil, eris.Wrapf(err, "store: assessment history %s", projectID)
		}
		return rows, nil
	})
}
