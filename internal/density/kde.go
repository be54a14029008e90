// Package density computes kernel density surfaces and walking-distance
// accessibility grids in Web Mercator meters.
package density

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rotisserie/eris"
)

// DefaultKDECategories are the categories that get a density map when none
// are configured.
var DefaultKDECategories = []string{
	"food_drink",
	"retail_food",
	"education",
	"healthcare",
	"auto_mobility",
	"green_spaces",
	"finance",
}

// ErrTooFewPoints is returned when a category is too sparse for a surface.
var ErrTooFewPoints = eris.New("density: too few points")

// KDEParams configures a density surface.
type KDEParams struct {
	GridSize  int     // samples per axis
	Bandwidth float64 // Gaussian kernel bandwidth, meters
	Pad       float64 // padding around the point extent, meters
	MinPoints int     // fewer points yield ErrTooFewPoints
	Threshold float64 // normalized weights at or below are dropped
}

// DefaultKDEParams returns a 70x70 grid, 300 m bandwidth and 400 m padding.
func DefaultKDEParams() KDEParams {
	return KDEParams{GridSize: 70, Bandwidth: 300, Pad: 400, MinPoints: 5, Threshold: 0.05}
}

// HeatPoint is one weighted grid sample in lon/lat.
type HeatPoint struct {
	Lon    float64 `json:"lon"`
	Lat    float64 `json:"lat"`
	Weight float64 `json:"weight"`
}

// KDE estimates a Gaussian kernel density over pts (lon/lat) on a regular
// Mercator grid and returns the samples whose min-max normalized weight
// exceeds the threshold, in grid order.
func KDE(pts []orb.Point, p KDEParams) ([]HeatPoint, error) {
	if p.GridSize < 2 || !(p.Bandwidth > 0) {
		return nil, eris.Errorf("density: invalid kde params %+v", p)
	}
	if len(pts) < p.MinPoints || len(pts) == 0 {
		return nil, eris.Wrapf(ErrTooFewPoints, "density: %d points, need %d", len(pts), p.MinPoints)
	}

	merc := make([]orb.Point, len(pts))
	var bound orb.Bound
	for i, pt := range pts {
		merc[i] = project.WGS84.ToMercator(pt)
		if i == 0 {
			bound = merc[i].Bound()
		} else {
			bound = bound.Extend(merc[i])
		}
	}
	bound = bound.Pad(p.Pad)

	xs := linspace(bound.Min[0], bound.Max[0], p.GridSize)
	ys := linspace(bound.Min[1], bound.Max[1], p.GridSize)

	inv := 1 / (2 * p.Bandwidth * p.Bandwidth)
	z := make([]float64, 0, len(xs)*len(ys))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, y := range ys {
		for _, x := range xs {
			var sum float64
			for _, m := range merc {
				dx, dy := x-m[0], y-m[1]
				sum += math.Exp(-(dx*dx + dy*dy) * inv)
			}
			z = append(z, sum)
			lo = math.Min(lo, sum)
			hi = math.Max(hi, sum)
		}
	}

	out := make([]HeatPoint, 0, len(z)/4)
	for i, v := range z {
		w := (v - lo) / (hi - lo + 1e-9)
		if w <= p.Threshold {
			continue
		}
		ll := project.Mercator.ToWGS84(orb.Point{xs[i%len(xs)], ys[i/len(xs)]})
		out = append(out, HeatPoint{Lon: ll[0], Lat: ll[1], Weight: w})
	}
	return out, nil
}

// linspace returns n evenly spaced values from a to b inclusive.
func linspace(a, b float64, n int) []float64 {
	out := make([]float64, n)
	step := (b - a) / float64(n-1)
	for i := range out {
		out[i] = a + float64(i)*step
	}
	out[n-1] = b
	return out
}
