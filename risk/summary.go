package risk

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a ranked batch for dashboards.
type Summary struct {
	Count       int           `json:"count"`
	MeanRisk    float64       `json:"mean_risk"`
	StdDevRisk  float64       `json:"stddev_risk"`
	MaxRisk     int           `json:"max_risk"`
	P90Risk     float64       `json:"p90_risk"`
	LabelCounts map[Label]int `json:"label_counts"`
}

// Summarize computes distribution statistics over predicted risk.
func Summarize(results []ProjectRisk) Summary {
	s := Summary{
		Count: len(results),
		LabelCounts: map[Label]int{
			LabelSafe:     0,
			LabelModerate: 0,
			LabelCritical: 0,
		},
	}
	if len(results) == 0 {
		return s
	}

	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = float64(r.Prediction.PredictedRisk)
		s.LabelCounts[r.Prediction.RiskLabel]++
	}
	sort.Float64s(scores)

	s.MeanRisk = stat.Mean(scores, nil)
	if len(scores) > 1 {
		s.StdDevRisk = stat.StdDev(scores, nil)
	}
	s.MaxRisk = int(floats.Max(scores))
	s.P90Risk = stat.Quantile(0.9, stat.Empirical, scores, nil)
	return s
}
