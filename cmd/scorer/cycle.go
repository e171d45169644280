package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"infra-risk-api/models"
	"infra-risk-api/risk"
	"infra-risk-api/services"
)

// pool is the subset of pgxpool.Pool the scorer needs.
type pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Delete(ctx context.Context, key string) error
}

const (
	queryProjects = `
		SELECT id, COALESCE(name, ''), contractor_name, completion_date, latitude, longitude
		FROM government_projects
		WHERE latitude IS NOT NULL AND longitude IS NOT NULL`

	queryReports = `
		SELECT latitude, longitude, COALESCE(severity, '')
		FROM reports`

	queryProfiles = `
		SELECT contractor_name, risk_score, is_blacklisted
		FROM contractor_risk_profiles`

	queryPreviousLabels = `
		SELECT DISTINCT ON (project_id) project_id, risk_label
		FROM risk_assessments
		ORDER BY project_id, ts DESC`

	upsertAssessment = `
		INSERT INTO risk_assessments (ts, project_id, run_id, predicted_risk, risk_label, forecast_reason,
			age_factor, cluster_factor, contractor_factor, seasonal_multiplier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (ts, project_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			predicted_risk = EXCLUDED.predicted_risk,
			risk_label = EXCLUDED.risk_label,
			forecast_reason = EXCLUDED.forecast_reason,
			age_factor = EXCLUDED.age_factor,
			cluster_factor = EXCLUDED.cluster_factor,
			contractor_factor = EXCLUDED.contractor_factor,
			seasonal_multiplier = EXCLUDED.seasonal_multiplier`
)

type scorer struct {
	db     pool
	pub    publisher
	engine *risk.Engine
	loc    *time.Location
	clock  func() time.Time
	runID  func() string
}

func newScorer(db pool, pub publisher, engine *risk.Engine, loc *time.Location) *scorer {
	if loc == nil {
		loc = time.UTC
	}
	return &scorer{
		db:     db,
		pub:    pub,
		engine: engine,
		loc:    loc,
		clock:  time.Now,
		runID:  func() string { return uuid.NewString() },
	}
}

type cycleResult struct {
	RunID       string
	Assessed    int
	Stored      int
	Published   int
	Escalations []services.Escalation
}

func (s *scorer) runCycle(ctx context.Context) (cycleResult, error) {
	start := time.Now()
	defer func() {
		cycleDuration.Observe(time.Since(start).Seconds())
	}()

	now := s.clock().In(s.loc)
	ts := now.UTC().Truncate(time.Second)
	res := cycleResult{RunID: s.runID()}

	projects, err := s.loadProjects(ctx)
	if err != nil {
		assessmentsFailed.Inc()
		return res, err
	}

	reports, err := s.loadReports(ctx)
	if err != nil {
		zap.L().Warn("scorer: reports unavailable, scoring without clusters", zap.Error(err))
		reports = nil
	}

	engine, profiles := s.engine, map[string]float64{}
	rows, err := s.loadProfiles(ctx)
	if err != nil {
		zap.L().Warn("scorer: contractor profiles unavailable, using fallback list only", zap.Error(err))
	} else {
		scores, blacklisted := services.ProfileInputs(rows)
		engine = s.engine.WithBadContractors(blacklisted...)
		profiles = engine.KeyProfiles(scores)
	}

	previous, err := s.loadPreviousLabels(ctx)
	if err != nil {
		zap.L().Warn("scorer: previous labels unavailable, skipping escalation check", zap.Error(err))
		previous = map[string]string{}
	}

	results, err := engine.AssessAll(ctx, projects, reports, profiles, now)
	if err != nil {
		assessmentsFailed.Inc()
		return res, eris.Wrap(err, "scorer: assess projects")
	}
	res.Assessed = len(results)
	assessmentsGenerated.Add(float64(len(results)))

	if len(results) == 0 {
		zap.L().Info("scorer: no scorable projects, skipping")
		return res, nil
	}

	for _, pr := range results {
		if s.store(ctx, res.RunID, ts, pr) {
			res.Stored++
		}
		if s.publish(ctx, services.RiskEvent{Type: services.EventRiskUpdate, RunID: res.RunID, Data: pr}) {
			res.Published++
			assessmentsPublished.Inc()
		}
		if esc, ok := services.DetectEscalation(previous[pr.ProjectID], pr); ok {
			res.Escalations = append(res.Escalations, esc)
			escalationsDetected.Inc()
			zap.L().Info("scorer: risk escalated",
				zap.String("project_id", esc.ProjectID),
				zap.String("from", string(esc.From)),
				zap.String("to", string(esc.To)),
				zap.Int("predicted_risk", esc.PredictedRisk),
			)
			s.publish(ctx, services.RiskEvent{Type: services.EventRiskEscalation, RunID: res.RunID, Data: esc})
		}
	}

	if err := s.pub.Delete(ctx, services.PredictionsCacheKey); err != nil {
		zap.L().Warn("scorer: cache invalidation failed", zap.Error(err))
	}

	zap.L().Info("scorer: cycle completed",
		zap.String("run_id", res.RunID),
		zap.Int("projects", res.Assessed),
		zap.Int("stored", res.Stored),
		zap.Int("published", res.Published),
		zap.Int("escalations", len(res.Escalations)),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

func (s *scorer) store(ctx context.Context, runID string, ts time.Time, pr risk.ProjectRisk) bool {
	a := models.NewRiskAssessment(runID, ts, pr)
	_, err := s.db.Exec(ctx, upsertAssessment,
		a.TS, a.ProjectID, a.RunID, a.PredictedRisk, a.RiskLabel, a.ForecastReason,
		a.AgeFactor, a.ClusterFactor, a.ContractorFactor, a.SeasonalMultiplier)
	if err != nil {
		assessmentsFailed.Inc()
		zap.L().Warn("scorer: db upsert failed", zap.String("project_id", pr.ProjectID), zap.Error(err))
		return false
	}
	assessmentsStored.Inc()
	return true
}

func (s *scorer) publish(ctx context.Context, ev services.RiskEvent) bool {
	if err := s.pub.Publish(ctx, services.RiskChannel, ev); err != nil {
		zap.L().Warn("scorer: redis publish failed", zap.String("type", ev.Type), zap.Error(err))
		return false
	}
	return true
}

func (s *scorer) loadProjects(ctx context.Context) ([]risk.Project, error) {
	rows, err := s.db.Query(ctx, queryProjects)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: query projects")
	}
	defer rows.Close()

	var out []risk.Project
	for rows.Next() {
		var (
			p          risk.Project
			contractor *string
		)
		if err := rows.Scan(&p.ID, &p.Name, &contractor, &p.CompletionDate, &p.Latitude, &p.Longitude); err != nil {
			assessmentsFailed.Inc()
			zap.L().Warn("scorer: project row scan failed", zap.Error(err))
			continue
		}
		if contractor != nil {
			p.ContractorName = *contractor
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "scorer: iterate projects")
	}
	return out, nil
}

func (s *scorer) loadReports(ctx context.Context) ([]risk.Report, error) {
	rows, err := s.db.Query(ctx, queryReports)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: query reports")
	}
	defer rows.Close()

	var out []risk.Report
	for rows.Next() {
		var (
			r        risk.Report
			severity string
		)
		if err := rows.Scan(&r.Latitude, &r.Longitude, &severity); err != nil {
			zap.L().Warn("scorer: report row scan failed", zap.Error(err))
			continue
		}
		r.Severity = risk.ParseSeverity(severity)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "scorer: iterate reports")
	}
	return out, nil
}

func (s *scorer) loadProfiles(ctx context.Context) ([]models.ContractorRiskProfile, error) {
	rows, err := s.db.Query(ctx, queryProfiles)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: query profiles")
	}
	defer rows.Close()

	var out []models.ContractorRiskProfile
	for rows.Next() {
		var p models.ContractorRiskProfile
		if err := rows.Scan(&p.ContractorName, &p.RiskScore, &p.IsBlacklisted); err != nil {
			zap.L().Warn("scorer: profile row scan failed", zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "scorer: iterate profiles")
	}
	return out, nil
}

func (s *scorer) loadPreviousLabels(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.Query(ctx, queryPreviousLabels)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: query previous labels")
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, label string
		if err := rows.Scan(&id, &label); err != nil {
			continue
		}
		out[id] = label
	}
	return out, eris.Wrap(rows.Err(), "scorer: iterate previous labels")
}
