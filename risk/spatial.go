package risk

import (
	"math"
	"sort"
)

// NearbyDelta is the half-width, in degrees, of the square around a project
// inside which reports count as nearby. It is roughly 1.1 km of latitude and
// deliberately not a geodesic radius.
const NearbyDelta = 0.01

// IsNearby reports whether r falls strictly inside the square around
// (lat, lon).
func IsNearby(lat, lon float64, r Report) bool {
	return math.Abs(r.Latitude-lat) < NearbyDelta && math.Abs(r.Longitude-lon) < NearbyDelta
}

// Nearby returns the reports around p by linear scan, in input order. A
// project without coordinates has no nearby reports.
func Nearby(p Project, reports []Report) []Report {
	if !p.HasLocation() {
		return nil
	}
	lat, lon := *p.Latitude, *p.Longitude
	var out []Report
	for _, r := range reports {
		if IsNearby(lat, lon, r) {
			out = append(out, r)
		}
	}
	return out
}

type cell struct {
	lat, lon int64
}

// cellMargin is how many neighbouring cells a query scans on each side. One
// cell suffices geometrically; the second absorbs float error in the key.
const cellMargin = 2

// ReportIndex buckets reports on a NearbyDelta grid. Lookups return exactly
// what Nearby returns for the same report slice, in the same order.
type ReportIndex struct {
	reports []Report
	cells   map[cell][]int
}

// NewReportIndex indexes reports. The slice is retained, not copied.
func NewReportIndex(reports []Report) *ReportIndex {
	idx := &ReportIndex{
		reports: reports,
		cells:   make(map[cell][]int),
	}
	for i, r := range reports {
		c, ok := cellOf(r.Latitude, r.Longitude)
		if !ok {
			// NaN or infinite coordinates never satisfy IsNearby.
			continue
		}
		idx.cells[c] = append(idx.cells[c], i)
	}
	return idx
}

// Len is the number of reports given to the index.
func (x *ReportIndex) Len() int {
	return len(x.reports)
}

// Nearby returns the reports around p.
func (x *ReportIndex) Nearby(p Project) []Report {
	if !p.HasLocation() {
		return nil
	}
	lat, lon := *p.Latitude, *p.Longitude
	center, ok := cellOf(lat, lon)
	if !ok {
		return nil
	}

	var hits []int
	for dl := int64(-cellMargin); dl <= cellMargin; dl++ {
		for dn := int64(-cellMargin); dn <= cellMargin; dn++ {
			for _, i := range x.cells[cell{center.lat + dl, center.lon + dn}] {
				if IsNearby(lat, lon, x.reports[i]) {
					hits = append(hits, i)
				}
			}
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Ints(hits)

	out := make([]Report, len(hits))
	for j, i := range hits {
		out[j] = x.reports[i]
	}
	return out
}

func cellOf(lat, lon float64) (cell, bool) {
	a, b := math.Floor(lat/NearbyDelta), math.Floor(lon/NearbyDelta)
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return cell{}, false
	}
	return cell{int64(a), int64(b)}, true
}
