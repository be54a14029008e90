package report

import (
	"sort"
	"strings"

	"github.com/paulmach/orb"

	"github.com/sells-group/district-poi/internal/model"
)

// RubricCount is the number of POIs mentioning a rubric name.
type RubricCount struct {
	Rubric string `csv:"rubric" json:"rubric"`
	Count  int    `csv:"count" json:"count"`
}

// Overview is a descriptive snapshot of a POI table.
type Overview struct {
	Total          int
	WithAddress    int
	WithRubrics    int
	RubricMentions int
	UniqueRubrics  int
	TopRubrics     []RubricCount
	Sources        []CategoryCount
	// Bound and Center are zero when Total is zero.
	Bound  orb.Bound
	Center orb.Point
}

// Describe computes an Overview with at most topN rubrics.
func Describe(pois []model.POI, topN int) Overview {
	o := Overview{Total: len(pois)}

	rubrics := make(map[string]int)
	sources := make(map[string]int)
	var sumLon, sumLat float64
	for i, p := range pois {
		if strings.TrimSpace(p.Address) != "" {
			o.WithAddress++
		}
		if len(p.Rubrics) > 0 {
			o.WithRubrics++
		}
		for _, r := range p.Rubrics {
			name := strings.TrimSpace(r.Name)
			if name == "" {
				name = r.ID
			}
			if name == "" {
				continue
			}
			rubrics[name]++
			o.RubricMentions++
		}
		src := p.SourceCategory
		if src == "" {
			src = model.Unknown
		}
		sources[src]++

		pt := orb.Point{p.Lon, p.Lat}
		if i == 0 {
			o.Bound = pt.Bound()
		} else {
			o.Bound = o.Bound.Extend(pt)
		}
		sumLon += p.Lon
		sumLat += p.Lat
	}
	if o.Total > 0 {
		o.Center = orb.Point{sumLon / float64(o.Total), sumLat / float64(o.Total)}
	}

	o.UniqueRubrics = len(rubrics)
	for name, n := range rubrics {
		o.TopRubrics = append(o.TopRubrics, RubricCount{Rubric: name, Count: n})
	}
	sort.Slice(o.TopRubrics, func(i, j int) bool {
		a, b := o.TopRubrics[i], o.TopRubrics[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Rubric < b.Rubric
	})
	if topN > 0 && len(o.TopRubrics) > topN {
		o.TopRubrics = o.TopRubrics[:topN]
	}

	for s, n := range sources {
		o.Sources = append(o.Sources, CategoryCount{Category: s, Count: n})
	}
	sort.Slice(o.Sources, func(i, j int) bool {
		a, b := o.Sources[i], o.Sources[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})
	return o
}
