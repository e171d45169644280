package services

import (
	"infra-risk-api/risk"
)

const (
	EventRiskUpdate     = "risk_update"
	EventRiskEscalation = "risk_escalation"
)

// RiskEvent is the envelope published on RiskChannel and relayed verbatim to
// websocket clients.
type RiskEvent struct {
	Type  string      `json:"type"`
	RunID string      `json:"run_id"`
	Data  interface{} `json:"data"`
}

// Escalation reports a project whose label moved to a worse bucket between
// two scorer runs.
type Escalation struct {
	ProjectID     string     `json:"project_id"`
	ProjectName   string     `json:"project_name"`
	From          risk.Label `json:"from"`
	To            risk.Label `json:"to"`
	PredictedRisk int        `json:"predicted_risk"`
}

// DetectEscalation compares the previous stored label with a fresh result.
// Unknown previous labels never escalate.
func DetectEscalation(previous string, pr risk.ProjectRisk) (Escalation, bool) {
	from, ok := risk.ParseLabel(previous)
	if !ok {
		return Escalation{}, false
	}
	to := pr.Prediction.RiskLabel
	if to.Rank() <= from.Rank() {
		return Escalation{}, false
	}
	return Escalation{
		ProjectID:     pr.ProjectID,
		ProjectName:   pr.ProjectName,
		From:          from,
		To:            to,
		PredictedRisk: pr.Prediction.PredictedRisk,
	}, true
}
