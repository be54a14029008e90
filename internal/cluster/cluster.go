package cluster

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/sells-group/district-poi/internal/model"
)

// Summary describes a clustering result.
type Summary struct {
	Clusters int
	Noise    int
	// Sizes maps each label, Noise included, to its point count.
	Sizes map[int]int
}

// Labels returns the sorted labels present in the summary.
func (s Summary) Labels() []int {
	out := make([]int, 0, len(s.Sizes))
	for l := range s.Sizes {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Assign standardizes the POI coordinates, runs DBSCAN and writes the label
// into every element of pois.
func Assign(pois []model.POI, p Params) (Summary, error) {
	pts := make([]orb.Point, len(pois))
	for i, poi := range pois {
		pts[i] = orb.Point{poi.Lon, poi.Lat}
	}
	scaled, _ := Standardize(pts)

	labels, err := DBSCAN(scaled, p)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{Sizes: make(map[int]int)}
	for i, l := range labels {
		pois[i].Cluster = model.IntPtr(l)
		s.Sizes[l]++
		if l == Noise {
			s.Noise++
		} else if l+1 > s.Clusters {
			s.Clusters = l + 1
		}
	}
	return s, nil
}
