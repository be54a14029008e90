// Package report builds the flat summaries of a categorized and clustered POI
// table: counts per cluster, per category, the cluster by category
// cross-tabulation and the leading subcategories of each cluster.
package report

import (
	"sort"
	"strconv"

	"github.com/sells-group/district-poi/internal/model"
)

// ClusterCount is the number of POIs carrying one cluster label.
type ClusterCount struct {
	Cluster int `csv:"cluster" json:"cluster"`
	Count   int `csv:"count" json:"count"`
}

// CategoryCount is the number of POIs in one category.
type CategoryCount struct {
	Category string `csv:"category" json:"category"`
	Count    int    `csv:"count" json:"count"`
}

// ClusterCategoryCount is one cell of the cluster by category table in long form.
type ClusterCategoryCount struct {
	Cluster  int    `csv:"cluster" json:"cluster"`
	Category string `csv:"category" json:"category"`
	Count    int    `csv:"count" json:"count"`
}

// ClusterSubcategoryCount is one subcategory tally inside a cluster.
type ClusterSubcategoryCount struct {
	Cluster     int    `csv:"cluster" json:"cluster"`
	Subcategory string `csv:"subcategory" json:"subcategory"`
	Count       int    `csv:"count" json:"count"`
}

// Summary holds every table derived from one POI set.
type Summary struct {
	Total int
	// Clustered is false when no POI carries a cluster label; the cluster
	// tables then hold a single noise row.
	Clustered         bool
	Clusters          []ClusterCount
	Categories        []CategoryCount
	ClusterCategories []ClusterCategoryCount
	Subcategories     []ClusterSubcategoryCount
}

type pair struct {
	cluster int
	key     string
}

// Build tallies pois. Empty categories and subcategories count as unknown and
// unclustered POIs count as noise.
//
// Ordering: clusters ascending (noise first); categories by count descending
// then name; the long cross table by cluster then category; subcategories by
// cluster, then count descending, then name.
func Build(pois []model.POI) Summary {
	s := Summary{Total: len(pois)}

	clusters := make(map[int]int)
	categories := make(map[string]int)
	cross := make(map[pair]int)
	subs := make(map[pair]int)
	for _, p := range pois {
		if p.Cluster != nil {
			s.Clustered = true
		}
		c := p.ClusterLabel()
		cat := p.CategoryOrUnknown()
		clusters[c]++
		categories[cat]++
		cross[pair{c, cat}]++
		subs[pair{c, p.SubcategoryOrUnknown()}]++
	}

	for c, n := range clusters {
		s.Clusters = append(s.Clusters, ClusterCount{Cluster: c, Count: n})
	}
	sort.Slice(s.Clusters, func(i, j int) bool { return s.Clusters[i].Cluster < s.Clusters[j].Cluster })

	for c, n := range categories {
		s.Categories = append(s.Categories, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(s.Categories, func(i, j int) bool {
		a, b := s.Categories[i], s.Categories[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})

	for k, n := range cross {
		s.ClusterCategories = append(s.ClusterCategories, ClusterCategoryCount{Cluster: k.cluster, Category: k.key, Count: n})
	}
	sort.Slice(s.ClusterCategories, func(i, j int) bool {
		a, b := s.ClusterCategories[i], s.ClusterCategories[j]
		if a.Cluster != b.Cluster {
			return a.Cluster < b.Cluster
		}
		return a.Category < b.Category
	})

	for k, n := range subs {
		s.Subcategories = append(s.Subcategories, ClusterSubcategoryCount{Cluster: k.cluster, Subcategory: k.key, Count: n})
	}
	sort.Slice(s.Subcategories, func(i, j int) bool {
		a, b := s.Subcategories[i], s.Subcategories[j]
		if a.Cluster != b.Cluster {
			return a.Cluster < b.Cluster
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Subcategory < b.Subcategory
	})
	return s
}

// CategoryNames returns the distinct categories in alphabetical order.
func (s Summary) CategoryNames() []string {
	names := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		names = append(names, c.Category)
	}
	sort.Strings(names)
	return names
}

// Wide pivots the cross table: one row per cluster, one column per category,
// missing combinations filled with zero.
func (s Summary) Wide() (header []string, records [][]string) {
	cats := s.CategoryNames()
	col := make(map[string]int, len(cats))
	header = append([]string{"cluster"}, cats...)
	for i, c := range cats {
		col[c] = i + 1
	}

	rowOf := make(map[int]int, len(s.Clusters))
	for _, c := range s.Clusters {
		rec := make([]string, len(header))
		rec[0] = strconv.Itoa(c.Cluster)
		for i := 1; i < len(rec); i++ {
			rec[i] = "0"
		}
		rowOf[c.Cluster] = len(records)
		records = append(records, rec)
	}
	for _, cc := range s.ClusterCategories {
		records[rowOf[cc.Cluster]][col[cc.Category]] = strconv.Itoa(cc.Count)
	}
	return header, records
}

// TopSubcategories returns at most n subcategory rows per cluster. n <= 0
// keeps every row.
func (s Summary) TopSubcategories(n int) []ClusterSubcategoryCount {
	if n <= 0 {
		return s.Subcategories
	}
	var out []ClusterSubcategoryCount
	seen := make(map[int]int)
	for _, r := range s.Subcategories {
		if seen[r.Cluster] < n {
			out = append(out, r)
			seen[r.Cluster]++
		}
	}
	return out
}
