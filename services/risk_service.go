package services

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"infra-risk-api/models"
	"infra-risk-api/risk"
)

var (
	ErrProjectNotFound = eris.New("project not found")
	ErrMissingLocation = eris.New("project has no coordinates")
)

// PredictionsCacheKey holds the ranked batch. The scorer deletes it after
// each cycle.
const PredictionsCacheKey = "risk:predictions"

// RiskService gathers engine inputs from the store, scores them and caches
// the ranked batch. It owns the clock; the engine never reads it.
type RiskService struct {
	data   DataSource
	engine *risk.Engine
	cache  *CacheService
	loc    *time.Location
	ttl    time.Duration
	clock  func() time.Time
}

type RiskServiceOption func(*RiskService)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) RiskServiceOption {
	return func(s *RiskService) { s.clock = clock }
}

// NewRiskService wires the service. A nil cache disables caching and a nil loc
// means UTC.
func NewRiskService(data DataSource, engine *risk.Engine, cache *CacheService, loc *time.Location, ttl time.Duration, opts ...RiskServiceOption) *RiskService {
	if loc == nil {
		loc = time.UTC
	}
	s := &RiskService{
		data:   data,
		engine: engine,
		cache:  cache,
		loc:    loc,
		ttl:    ttl,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the evaluation time in the configured zone; its month decides the
// seasonal multiplier.
func (s *RiskService) Now() time.Time {
	return s.clock().In(s.loc)
}

// PredictAll returns every scorable project ranked by predicted risk.
func (s *RiskService) PredictAll(ctx context.Context) ([]risk.ProjectRisk, error) {
	var cached []risk.ProjectRisk
	hit, err := s.cache.Get(ctx, PredictionsCacheKey, &cached)
	if err != nil {
		zap.L().Warn("risk: cache read failed", zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	rows, err := s.data.ScorableProjects(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "risk: load projects")
	}
	projects := make([]risk.Project, len(rows))
	for i, row := range rows {
		projects[i] = row.ToRisk()
	}

	reportRows, err := s.data.Reports(ctx)
	if err != nil {
		zap.L().Warn("risk: reports unavailable, scoring without clusters", zap.Error(err))
		reportRows = nil
	}
	reports := toRiskReports(reportRows)

	engine, profiles := s.contractorInputs(ctx)

	start := time.Now()
	results, err := engine.AssessAll(ctx, projects, reports, profiles, s.Now())
	if err != nil {
		return nil, eris.Wrap(err, "risk: assess projects")
	}
	zap.L().Info("risk: batch scored",
		zap.Int("projects", len(results)),
		zap.Int("reports", len(reports)),
		zap.Int("profiles", len(profiles)),
		zap.Duration("took", time.Since(start)),
	)

	if err := s.cache.Set(ctx, PredictionsCacheKey, results, s.ttl); err != nil {
		zap.L().Warn("risk: cache write failed", zap.Error(err))
	}
	return results, nil
}

// PredictProject scores a single project.
func (s *RiskService) PredictProject(ctx context.Context, id string) (risk.ProjectRisk, error) {
	row, err := s.data.Project(ctx, id)
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return risk.ProjectRisk{}, ErrProjectNotFound
		}
		return risk.ProjectRisk{}, eris.Wrapf(err, "risk: load project %s", id)
	}
	p := row.ToRisk()
	if !p.HasLocation() {
		return risk.ProjectRisk{}, ErrMissingLocation
	}

	reportRows, err := s.data.ReportsNear(ctx, *p.Latitude, *p.Longitude, risk.NearbyDelta)
	if err != nil {
		zap.L().Warn("risk: nearby reports unavailable", zap.String("project_id", id), zap.Error(err))
		reportRows = nil
	}

	engine, profiles := s.contractorInputs(ctx)
	pr, _ := engine.Assess(p, risk.NewReportIndex(toRiskReports(reportRows)), profiles, s.Now())
	return pr, nil
}

// Summary aggregates the ranked batch.
func (s *RiskService) Summary(ctx context.Context) (risk.Summary, error) {
	results, err := s.PredictAll(ctx)
	if err != nil {
		return risk.Summary{}, err
	}
	return risk.Summarize(results), nil
}

// History returns stored assessments for a project, newest first.
func (s *RiskService) History(ctx context.Context, projectID string, before *time.Time, limit int) ([]models.RiskAssessment, error) {
	rows, err := s.data.AssessmentHistory(ctx, projectID, before, limit)
	if err != nil {
		return nil, eris.Wrap(err, "risk: load history")
	}
	return rows, nil
}

// contractorInputs loads profiles and extends the fallback set with
// blacklisted names. Failure degrades to no profile data.
func (s *RiskService) contractorInputs(ctx context.Context) (*risk.Engine, map[string]float64) {
	rows, err := s.data.ContractorProfiles(ctx)
	if err != nil {
		zap.L().Warn("risk: contractor profiles unavailable, using fallback list only", zap.Error(err))
		return s.engine, map[string]float64{}
	}
	scores, blacklisted := ProfileInputs(rows)
	engine := s.engine.WithBadContractors(blacklisted...)
	return engine, engine.KeyProfiles(scores)
}

// ProfileInputs splits profile rows into a name → score map and the names
// flagged as blacklisted.
func ProfileInputs(rows []models.ContractorRiskProfile) (map[string]float64, []string) {
	scores := make(map[string]float64, len(rows))
	var blacklisted []string
	for _, row := range rows {
		scores[row.ContractorName] = row.RiskScore
		if row.IsBlacklisted {
			blacklisted = append(blacklisted, row.ContractorName)
		}
	}
	return scores, blacklisted
}

func toRiskReports(rows []models.Report) []risk.Report {
	out := make([]risk.Report, len(rows))
	for i, row := range rows {
		out[i] = row.ToRisk()
	}
	return out
}
