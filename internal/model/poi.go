package model

import (
	"time"
)

// Unknown is the explicit bucket for unmapped subcategories and categories.
const Unknown = "unknown"

// NoiseLabel is the cluster label of points outside any dense region.
const NoiseLabel = -1

// Rubric is a raw catalog taxonomy tag attached to a POI.
type Rubric struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// POI is a single point of interest harvested from the catalog.
type POI struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Lon            float64   `json:"lon"`
	Lat            float64   `json:"lat"`
	Rubrics        []Rubric  `json:"rubrics"`
	SourceCategory string    `json:"source_category"`
	SourceClass    string    `json:"source_class,omitempty"`
	RegionID       string    `json:"region_id,omitempty"`
	CollectedAt    time.Time `json:"collected_at"`

	// Enrichment, written by the categorize and cluster commands.
	Subcategory string `json:"subcategory,omitempty"`
	Category    string `json:"category,omitempty"`
	Cluster     *int   `json:"cluster,omitempty"`
}

// RubricIDs returns the rubric identifiers in their original order.
func (p POI) RubricIDs() []string {
	ids := make([]string, 0, len(p.Rubrics))
	for _, r := range p.Rubrics {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// RubricNames returns the non-empty rubric names in order.
func (p POI) RubricNames() []string {
	names := make([]string, 0, len(p.Rubrics))
	for _, r := range p.Rubrics {
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}
	return names
}

// ClusterLabel returns the cluster label, or NoiseLabel when unclustered.
func (p POI) ClusterLabel() int {
	if p.Cluster == nil {
		return NoiseLabel
	}
	return *p.Cluster
}

// CategoryOrUnknown returns the category, substituting Unknown for empty values.
func (p POI) CategoryOrUnknown() string {
	if p.Category == "" {
		return Unknown
	}
	return p.Category
}

// SubcategoryOrUnknown returns the subcategory, substituting Unknown for empty values.
func (p POI) SubcategoryOrUnknown() string {
	if p.Subcategory == "" {
		return Unknown
	}
	return p.Subcategory
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
