package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPOI_RubricHelpers(t *testing.T) {
	p := POI{Rubrics: []Rubric{
		{ID: "161", Name: "Кафе"},
		{ID: "", Name: "Без id"},
		{ID: "164", Name: "Рестораны"},
	}}

	assert.Equal(t, []string{"161", "164"}, p.RubricIDs())
	assert.Equal(t, []string{"Кафе", "Без id", "Рестораны"}, p.RubricNames())
	assert.Empty(t, POI{Rubrics: []Rubric{{ID: "207"}}}.RubricNames())
}

func TestPOI_ClusterLabel(t *testing.T) {
	assert.Equal(t, NoiseLabel, POI{}.ClusterLabel())
	assert.Equal(t, 3, POI{Cluster: IntPtr(3)}.ClusterLabel())
}

func TestPOI_UnknownDefaults(t *testing.T) {
	p := POI{}
	assert.Equal(t, Unknown, p.CategoryOrUnknown())
	assert.Equal(t, Unknown, p.SubcategoryOrUnknown())

	p.Category = "healthcare"
	p.Subcategory = "pharmacy"
	assert.Equal(t, "healthcare", p.CategoryOrUnknown())
	assert.Equal(t, "pharmacy", p.SubcategoryOrUnknown())
}

func TestRunStats_AddOutcomeCounts(t *testing.T) {
	var s RunStats
	s.Add(RunStats{Requests: 2, Fetched: 10, Outcomes: map[string]int{"empty_page": 1}})
	s.Add(RunStats{Requests: 1, Stored: 4, Outcomes: map[string]int{"empty_page": 2, "transport_error": 1}})

	assert.Equal(t, 3, s.Requests)
	assert.Equal(t, 10, s.Fetched)
	assert.Equal(t, 4, s.Stored)
	assert.Equal(t, 3, s.Outcomes["empty_page"])
	assert.Equal(t, 1, s.Outcomes["transport_error"])
}
