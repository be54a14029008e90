package cluster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/district-poi/internal/model"
)

// MinHullPoints is the smallest cluster that gets an outline.
const MinHullPoints = 3

// CategoryCount is one row of a category breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// TopCategories counts categories (unknown included) and returns the n most
// frequent, ties broken by name. n <= 0 returns all.
func TopCategories(pois []model.POI, n int) []CategoryCount {
	counts := make(map[string]int)
	for _, p := range pois {
		counts[p.CategoryOrUnknown()]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for c, k := range counts {
		out = append(out, CategoryCount{Category: c, Count: k})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Hull is the convex outline of one cluster.
type Hull struct {
	Cluster int
	Count   int
	Top     []CategoryCount
	Polygon *geom.Polygon
}

// TopDescription renders the breakdown as "cat (n), cat (n)".
func (h Hull) TopDescription() string {
	if len(h.Top) == 0 {
		return "no data"
	}
	parts := make([]string, len(h.Top))
	for i, c := range h.Top {
		parts[i] = fmt.Sprintf("%s (%d)", c.Category, c.Count)
	}
	return strings.Join(parts, ", ")
}

// Hulls outlines every non-noise cluster with at least MinHullPoints points.
// Hulls are computed in Web Mercator and returned in lon/lat, ordered by
// cluster label. Clusters whose points are collinear are skipped.
func Hulls(pois []model.POI, topN int) []Hull {
	members := make(map[int][]model.POI)
	for _, p := range pois {
		if l := p.ClusterLabel(); l != Noise {
			members[l] = append(members[l], p)
		}
	}

	labels := make([]int, 0, len(members))
	for l := range members {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	var out []Hull
	for _, l := range labels {
		ps := members[l]
		if len(ps) < MinHullPoints {
			continue
		}
		poly := convexHull(ps)
		if poly == nil {
			continue
		}
		out = append(out, Hull{Cluster: l, Count: len(ps), Top: TopCategories(ps, topN), Polygon: poly})
	}
	return out
}

func convexHull(ps []model.POI) *geom.Polygon {
	flat := make([]float64, 0, 2*len(ps))
	for _, p := range ps {
		m := project.WGS84.ToMercator(orb.Point{p.Lon, p.Lat})
		flat = append(flat, m[0], m[1])
	}

	poly, ok := xy.ConvexHullFlat(geom.XY, flat).(*geom.Polygon)
	if !ok || poly.NumLinearRings() == 0 {
		return nil
	}

	coords := poly.FlatCoords()
	back := make([]float64, len(coords))
	for i := 0; i+1 < len(coords); i += 2 {
		ll := project.Mercator.ToWGS84(orb.Point{coords[i], coords[i+1]})
		back[i], back[i+1] = ll[0], ll[1]
	}
	return geom.NewPolygonFlat(geom.XY, back, poly.Ends())
}

// HullFeatures converts hulls to GeoJSON polygon features.
func HullFeatures(hulls []Hull) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(hulls))
	for _, h := range hulls {
		out = append(out, &geojson.Feature{
			ID:       fmt.Sprintf("cluster-%d", h.Cluster),
			Geometry: h.Polygon,
			Properties: map[string]interface{}{
				"cluster":        h.Cluster,
				"n_points":       h.Count,
				"top_categories": h.TopDescription(),
			},
		})
	}
	return out
}
