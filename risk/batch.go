package risk

import (
	"context"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Location is a project's coordinates in the output contract.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ProjectRisk is one entry of the ranked batch output.
type ProjectRisk struct {
	ProjectID   string     `json:"project_id"`
	ProjectName string     `json:"project_name"`
	Location    Location   `json:"location"`
	Prediction  Assessment `json:"prediction"`
}

// minShard keeps small batches on a single goroutine.
const minShard = 256

// Assess scores a single project against an already built index. The second
// return value is false when the project has no coordinates.
func (e *Engine) Assess(p Project, idx *ReportIndex, profiles map[string]float64, now time.Time) (ProjectRisk, bool) {
	if !p.HasLocation() {
		return ProjectRisk{}, false
	}
	var contractorRisk float64
	if p.ContractorName != "" {
		contractorRisk = profiles[e.ContractorKey(p.ContractorName)]
	}
	return ProjectRisk{
		ProjectID:   p.ID,
		ProjectName: p.Name,
		Location:    Location{Lat: *p.Latitude, Lng: *p.Longitude},
		Prediction:  e.Score(p, idx.Nearby(p), contractorRisk, now),
	}, true
}

// AssessAll scores every project with coordinates and ranks the results by
// predicted risk, highest first. Ties keep input order. profiles is keyed by
// ContractorKey; a nil map means no profile data. The only error is ctx's.
func (e *Engine) AssessAll(ctx context.Context, projects []Project, reports []Report, profiles map[string]float64, now time.Time) ([]ProjectRisk, error) {
	idx := NewReportIndex(reports)

	slots := make([]ProjectRisk, len(projects))
	scored := make([]bool, len(projects))

	shards := shardBounds(len(projects), runtime.GOMAXPROCS(0))
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range shards {
		lo, hi := s[0], s[1]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				slots[i], scored[i] = e.Assess(projects[i], idx, profiles, now)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]ProjectRisk, 0, len(projects))
	for i, ok := range scored {
		if ok {
			out = append(out, slots[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Prediction.PredictedRisk > out[j].Prediction.PredictedRisk
	})
	return out, nil
}

func shardBounds(n, workers int) [][2]int {
	if n == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	size := (n + workers - 1) / workers
	if size < minShard {
		size = minShard
	}
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}

// KeyProfiles re-keys a contractor name → score map by ContractorKey. When
// normalization folds two names together the higher score wins.
func (e *Engine) KeyProfiles(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for name, score := range scores {
		k := e.ContractorKey(name)
		if prev, ok := out[k]; ok && prev >= score {
			continue
		}
		out[k] = score
	}
	return out
}
