// Package risk scores government infrastructure projects for failure risk.
//
// The score fuses four signals: the age of the work since completion, the
// density and severity of citizen reports around the site, the contractor's
// reliability history and a monsoon multiplier. Scoring is a pure function of
// its inputs; the caller supplies "now".
package risk

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	ageCriticalDays = 1000
	ageAgingDays    = 365
	ageNewDays      = 180

	ageCriticalPoints = 30.0
	ageAgingPoints    = 15.0
	ageNewPoints      = 8.0

	clusterPointsPerWeight = 6.0
	maxClusterPoints       = 40.0

	maxContractorPoints = 30.0

	monsoonMultiplier = 1.5
	maxRisk           = 100.0

	criticalAbove = 75
	moderateAbove = 40

	// thresholds on the pre-rounding factor values that make a factor worth
	// mentioning in the forecast reason
	clusterReasonAbove    = 20.0
	contractorReasonAbove = 15.0
	ageReasonAbove        = 15.0

	noRiskReason = "No significant risk factors detected."

	msPerDay = 24 * 60 * 60 * 1000
)

// DefaultBadContractors is the fallback list used when no profile score exists.
var DefaultBadContractors = []string{"Shiv Shakti Infra", "Apex Roadways", "Highway Developers Ltd"}

// DefaultMonsoonMonths is June through September.
var DefaultMonsoonMonths = []time.Month{time.June, time.July, time.August, time.September}

// Label is the coarse risk bucket derived from a score.
type Label string

const (
	LabelSafe     Label = "SAFE"
	LabelModerate Label = "MODERATE"
	LabelCritical Label = "CRITICAL"
)

// ParseLabel accepts the exact upper-case label names.
func ParseLabel(s string) (Label, bool) {
	switch Label(s) {
	case LabelSafe, LabelModerate, LabelCritical:
		return Label(s), true
	default:
		return "", false
	}
}

// Rank orders labels from least to most severe.
func (l Label) Rank() int {
	switch l {
	case LabelCritical:
		return 2
	case LabelModerate:
		return 1
	default:
		return 0
	}
}

// LabelFor buckets a rounded score. Both boundaries are strict: 75 is
// MODERATE and 40 is SAFE.
func LabelFor(score int) Label {
	switch {
	case score > criticalAbove:
		return LabelCritical
	case score > moderateAbove:
		return LabelModerate
	default:
		return LabelSafe
	}
}

// Project is the subset of a government project the engine reads.
type Project struct {
	ID             string
	Name           string
	ContractorName string // empty when unknown
	CompletionDate *time.Time
	Latitude       *float64
	Longitude      *float64
}

// HasLocation reports whether both coordinates are present. Zero is a valid
// coordinate.
func (p Project) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// Report is a citizen report as seen by the engine.
type Report struct {
	Latitude  float64
	Longitude float64
	Severity  Severity
}

// Factors is the per-signal breakdown of an assessment.
type Factors struct {
	Age                float64 `json:"age_factor"`
	Cluster            float64 `json:"cluster_factor"`
	Contractor         float64 `json:"contractor_factor"`
	SeasonalMultiplier float64 `json:"seasonal_multiplier"`
}

// Assessment is the result of scoring one project.
type Assessment struct {
	PredictedRisk  int     `json:"predicted_risk"`
	RiskLabel      Label   `json:"risk_label"`
	ForecastReason string  `json:"forecast_reason"`
	Factors        Factors `json:"factors"`
}

// Config holds the tunable inputs of the engine that are not per-project.
type Config struct {
	// BadContractors is consulted only when the contractor has no positive
	// profile score.
	BadContractors []string
	MonsoonMonths  []time.Month
	// NormalizeContractors trims and case-folds contractor names before
	// matching. Off by default: names match exactly.
	NormalizeContractors bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BadContractors: append([]string(nil), DefaultBadContractors...),
		MonsoonMonths:  append([]time.Month(nil), DefaultMonsoonMonths...),
	}
}

// Engine scores projects. It is immutable after construction and safe for
// concurrent use.
type Engine struct {
	badContractors map[string]struct{}
	monsoon        [13]bool
	normalize      bool
}

// NewEngine builds an engine from cfg. Months outside 1-12 are ignored.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		badContractors: make(map[string]struct{}, len(cfg.BadContractors)),
		normalize:      cfg.NormalizeContractors,
	}
	for _, name := range cfg.BadContractors {
		e.badContractors[e.ContractorKey(name)] = struct{}{}
	}
	for _, m := range cfg.MonsoonMonths {
		if m >= time.January && m <= time.December {
			e.monsoon[m] = true
		}
	}
	return e
}

// WithBadContractors returns a copy of e whose fallback set also contains names.
func (e *Engine) WithBadContractors(names ...string) *Engine {
	if len(names) == 0 {
		return e
	}
	cp := &Engine{
		badContractors: make(map[string]struct{}, len(e.badContractors)+len(names)),
		monsoon:        e.monsoon,
		normalize:      e.normalize,
	}
	for k := range e.badContractors {
		cp.badContractors[k] = struct{}{}
	}
	for _, name := range names {
		cp.badContractors[cp.ContractorKey(name)] = struct{}{}
	}
	return cp
}

// ContractorKey is the form under which a contractor name is matched against
// profiles and the fallback set.
func (e *Engine) ContractorKey(name string) string {
	if !e.normalize {
		return name
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// IsBadContractor reports whether name is in the fallback set.
func (e *Engine) IsBadContractor(name string) bool {
	if name == "" {
		return false
	}
	_, ok := e.badContractors[e.ContractorKey(name)]
	return ok
}

// InMonsoon reports whether the month of now is a monsoon month.
func (e *Engine) InMonsoon(now time.Time) bool {
	return e.monsoon[now.Month()]
}

// Score computes the assessment for p. nearby must already be filtered with
// Nearby; contractorRiskScore is the profile score (0 when absent).
func (e *Engine) Score(p Project, nearby []Report, contractorRiskScore float64, now time.Time) Assessment {
	f := Factors{
		Age:                AgeFactor(p.CompletionDate, now),
		Cluster:            ClusterFactor(nearby),
		Contractor:         e.contractorFactor(p.ContractorName, contractorRiskScore),
		SeasonalMultiplier: 1,
	}

	raw := f.Age + f.Cluster + f.Contractor
	if e.InMonsoon(now) {
		f.SeasonalMultiplier = monsoonMultiplier
		raw = math.Min(maxRisk, raw*monsoonMultiplier)
	}

	score := clampScore(math.Round(raw))
	return Assessment{
		PredictedRisk:  score,
		RiskLabel:      LabelFor(score),
		ForecastReason: forecastReason(f, len(nearby), p.ContractorName),
		Factors:        f,
	}
}

// AgeFactor is the step function over whole days since completion.
func AgeFactor(completion *time.Time, now time.Time) float64 {
	if completion == nil {
		return 0
	}
	ageDays := math.Floor(float64(now.UnixMilli()-completion.UnixMilli()) / msPerDay)
	switch {
	case ageDays > ageCriticalDays:
		return ageCriticalPoints
	case ageDays > ageAgingDays:
		return ageAgingPoints
	case ageDays > ageNewDays:
		return ageNewPoints
	default:
		return 0
	}
}

// ClusterFactor weights nearby reports by severity, capped at 40.
func ClusterFactor(nearby []Report) float64 {
	if len(nearby) == 0 {
		return 0
	}
	var weighted float64
	for _, r := range nearby {
		weighted += r.Severity.Weight()
	}
	return math.Min(maxClusterPoints, weighted*clusterPointsPerWeight)
}

func (e *Engine) contractorFactor(name string, profileScore float64) float64 {
	if profileScore > 0 {
		return math.Min(maxContractorPoints, profileScore/100*maxContractorPoints)
	}
	if e.IsBadContractor(name) {
		return maxContractorPoints
	}
	return 0
}

func forecastReason(f Factors, nearbyCount int, contractor string) string {
	var reasons []string
	if f.Cluster > clusterReasonAbove {
		reasons = append(reasons, fmt.Sprintf("High report density (%d nearby)", nearbyCount))
	}
	if f.Contractor > contractorReasonAbove {
		reasons = append(reasons, fmt.Sprintf("Contractor '%s' has poor track record", contractor))
	}
	if f.Age > ageReasonAbove {
		reasons = append(reasons, "Infrastructure age exceeds maintenance threshold")
	}
	if f.SeasonalMultiplier > 1 {
		reasons = append(reasons, "Monsoon season increases failure probability")
	}
	if len(reasons) == 0 {
		return noRiskReason
	}
	return strings.Join(reasons, ". ") + "."
}

func clampScore(v float64) int {
	if !(v > 0) {
		return 0
	}
	if v > maxRisk {
		return int(maxRisk)
	}
	return int(v)
}
