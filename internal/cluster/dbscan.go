// Package cluster groups POIs with DBSCAN over standardized coordinates and
// outlines the resulting clusters.
package cluster

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/district-poi/internal/model"
)

// Noise is the label of points outside every dense region.
const Noise = model.NoiseLabel

const unvisited = -2

// Params are the DBSCAN operator constants.
type Params struct {
	// Eps is the neighborhood radius in standardized units.
	Eps float64
	// MinSamples is the neighborhood size, the point itself included, that
	// makes a point a core point.
	MinSamples int
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if !(p.Eps > 0) {
		return eris.Errorf("cluster: eps must be positive, got %v", p.Eps)
	}
	if p.MinSamples < 1 {
		return eris.Errorf("cluster: min_samples must be >= 1, got %d", p.MinSamples)
	}
	return nil
}

// Scaler records the per-dimension mean and scale used by Standardize.
type Scaler struct {
	Mean  orb.Point
	Scale orb.Point
}

// Standardize centers both dimensions to zero mean and unit population
// variance. A dimension without variance is centered with scale 1.
func Standardize(pts []orb.Point) ([]orb.Point, Scaler) {
	s := Scaler{Scale: orb.Point{1, 1}}
	if len(pts) == 0 {
		return nil, s
	}

	n := float64(len(pts))
	for _, p := range pts {
		s.Mean[0] += p[0]
		s.Mean[1] += p[1]
	}
	s.Mean[0] /= n
	s.Mean[1] /= n

	var ss orb.Point
	for _, p := range pts {
		dx, dy := p[0]-s.Mean[0], p[1]-s.Mean[1]
		ss[0] += dx * dx
		ss[1] += dy * dy
	}
	for d := 0; d < 2; d++ {
		if sd := math.Sqrt(ss[d] / n); sd > 0 {
			s.Scale[d] = sd
		}
	}

	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = orb.Point{(p[0] - s.Mean[0]) / s.Scale[0], (p[1] - s.Mean[1]) / s.Scale[1]}
	}
	return out, s
}

// DBSCAN labels every point with a cluster index 0, 1, 2, ... or Noise.
// Clusters are numbered in the order their first core point appears, so the
// result is deterministic for a given input order.
func DBSCAN(pts []orb.Point, p Params) ([]int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	idx := newGridIndex(pts, p.Eps)
	labels := make([]int, len(pts))
	for i := range labels {
		labels[i] = unvisited
	}

	next := 0
	for i := range pts {
		if labels[i] != unvisited {
			continue
		}
		seeds := idx.neighbors(i)
		if len(seeds) < p.MinSamples {
			labels[i] = Noise
			continue
		}

		c := next
		next++
		labels[i] = c
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if labels[j] == Noise {
				// Border point reached from a core point.
				labels[j] = c
				continue
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = c
			if nb := idx.neighbors(j); len(nb) >= p.MinSamples {
				seeds = append(seeds, nb...)
			}
		}
	}
	return labels, nil
}

type cell struct{ x, y int64 }

// gridIndex buckets points into square cells of side eps so a radius query
// only inspects the 3x3 block around a point.
type gridIndex struct {
	pts   []orb.Point
	eps   float64
	eps2  float64
	cells map[cell][]int
}

func newGridIndex(pts []orb.Point, eps float64) *gridIndex {
	g := &gridIndex{pts: pts, eps: eps, eps2: eps * eps, cells: make(map[cell][]int)}
	for i, p := range pts {
		c := g.cellOf(p)
		g.cells[c] = append(g.cells[c], i)
	}
	return g
}

func (g *gridIndex) cellOf(p orb.Point) cell {
	return cell{int64(math.Floor(p[0] / g.eps)), int64(math.Floor(p[1] / g.eps))}
}

// neighbors returns every point within eps of point i, i included, in
// ascending index order.
func (g *gridIndex) neighbors(i int) []int {
	p := g.pts[i]
	c := g.cellOf(p)
	var out []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, j := range g.cells[cell{c.x + dx, c.y + dy}] {
				q := g.pts[j]
				ddx, ddy := q[0]-p[0], q[1]-p[1]
				if ddx*ddx+ddy*ddy <= g.eps2 {
					out = append(out, j)
				}
			}
		}
	}
	slices.Sort(out)
	return out
}
