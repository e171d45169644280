package risk

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessAllRanksAndExcludes(t *testing.T) {
	e := newTestEngine()
	projects := []Project{
		{ID: "a", Name: "Quiet Lane", Latitude: ptr(19.0), Longitude: ptr(72.0)},
		{ID: "b", Name: "No Coordinates", Latitude: ptr(19.1)},
		{ID: "c", Name: "Busy Junction", Latitude: ptr(19.2), Longitude: ptr(72.2), ContractorName: "Metro Paving Co"},
		{ID: "d", Name: "Also Quiet", Latitude: ptr(19.4), Longitude: ptr(72.4)},
		{ID: "e", Name: "Blacklisted", Latitude: ptr(19.6), Longitude: ptr(72.6), ContractorName: "Apex Roadways"},
	}
	reports := []Report{
		{Latitude: 19.201, Longitude: 72.201, Severity: SeverityCritical},
		{Latitude: 19.199, Longitude: 72.2, Severity: SeverityCritical},
		{Latitude: 19.2, Longitude: 72.205, Severity: SeverityHigh},
	}
	profiles := map[string]float64{"Metro Paving Co": 50}

	got, err := e.AssessAll(context.Background(), projects, reports, profiles, january)
	require.NoError(t, err)
	require.Len(t, got, 4)

	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ProjectID
	}
	// c: 40 + 15 = 55; e: 30; a and d tie at 0 and keep input order.
	assert.Equal(t, []string{"c", "e", "a", "d"}, ids)
	assert.Equal(t, 55, got[0].Prediction.PredictedRisk)
	assert.Equal(t, Location{Lat: 19.2, Lng: 72.2}, got[0].Location)
	assert.Equal(t, "Busy Junction", got[0].ProjectName)
	assert.Equal(t, "High report density (3 nearby).", got[0].Prediction.ForecastReason)
}

func TestAssessAllWithEmptyInputs(t *testing.T) {
	e := newTestEngine()
	projects := []Project{{ID: "a", Latitude: ptr(1.0), Longitude: ptr(1.0), ContractorName: "Unknown"}}

	got, err := e.AssessAll(context.Background(), projects, nil, nil, january)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Prediction.PredictedRisk)

	got, err = e.AssessAll(context.Background(), nil, nil, nil, january)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAssessAllMatchesSequentialScoring(t *testing.T) {
	e := newTestEngine()
	rng := rand.New(rand.NewSource(99))

	projects := make([]Project, 1500)
	for i := range projects {
		projects[i] = Project{
			ID:        fmt.Sprintf("p%d", i),
			Latitude:  ptr(19 + rng.Float64()*0.2),
			Longitude: ptr(72 + rng.Float64()*0.2),
		}
		if i%3 == 0 {
			projects[i].CompletionDate = daysBefore(july, rng.Intn(1500))
		}
	}
	reports := make([]Report, 800)
	for i := range reports {
		reports[i] = Report{Latitude: 19 + rng.Float64()*0.2, Longitude: 72 + rng.Float64()*0.2, Severity: SeverityHigh}
	}

	got, err := e.AssessAll(context.Background(), projects, reports, nil, july)
	require.NoError(t, err)
	require.Len(t, got, len(projects))

	byID := make(map[string]ProjectRisk, len(got))
	for i, r := range got {
		byID[r.ProjectID] = r
		if i > 0 {
			require.GreaterOrEqual(t, got[i-1].Prediction.PredictedRisk, r.Prediction.PredictedRisk)
		}
	}
	for _, p := range projects {
		want := e.Score(p, Nearby(p, reports), 0, july)
		assert.Equal(t, want, byID[p.ID].Prediction, "project %s", p.ID)
	}
}

func TestAssessAllCanceled(t *testing.T) {
	e := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.AssessAll(ctx, []Project{{ID: "a", Latitude: ptr(1.0), Longitude: ptr(1.0)}}, nil, nil, january)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeyProfiles(t *testing.T) {
	exact := newTestEngine()
	in := map[string]float64{"Apex Roadways": 20, "apex roadways ": 60}
	assert.Equal(t, in, exact.KeyProfiles(in))

	cfg := DefaultConfig()
	cfg.NormalizeContractors = true
	folded := NewEngine(cfg).KeyProfiles(in)
	assert.Equal(t, map[string]float64{"apex roadways": 60}, folded)
}

func TestShardBounds(t *testing.T) {
	assert.Nil(t, shardBounds(0, 4))
	assert.Equal(t, [][2]int{{0, 10}}, shardBounds(10, 4))
	assert.Equal(t, [][2]int{{0, 256}, {256, 512}, {512, 600}}, shardBounds(600, 8))
	assert.Equal(t, [][2]int{{0, 500}, {500, 1000}}, shardBounds(1000, 2))
}

func TestSummarize(t *testing.T) {
	empty := Summarize(nil)
	assert.Equal(t, 0, empty.Count)
	assert.Equal(t, 0, empty.LabelCounts[LabelCritical])

	results := []ProjectRisk{
		{Prediction: Assessment{PredictedRisk: 90, RiskLabel: LabelCritical}},
		{Prediction: Assessment{PredictedRisk: 50, RiskLabel: LabelModerate}},
		{Prediction: Assessment{PredictedRisk: 10, RiskLabel: LabelSafe}},
		{Prediction: Assessment{PredictedRisk: 10, RiskLabel: LabelSafe}},
	}
	s := Summarize(results)
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 40.0, s.MeanRisk, 1e-9)
	assert.InDelta(t, 38.297084310, s.StdDevRisk, 1e-6)
	assert.Equal(t, 90, s.MaxRisk)
	assert.Equal(t, 90.0, s.P90Risk)
	assert.Equal(t, map[Label]int{LabelSafe: 2, LabelModerate: 1, LabelCritical: 1}, s.LabelCounts)

	single := Summarize(results[:1])
	assert.Equal(t, 0.0, single.StdDevRisk)
}
