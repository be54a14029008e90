package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/district-poi/internal/cluster"
	"github.com/sells-group/district-poi/internal/grid"
	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/report"
	"github.com/sells-group/district-poi/internal/store"
)

func TestFormatTiles(t *testing.T) {
	g, err := grid.Partition(grid.BBox{MinLon: 30.0, MinLat: 59.8, MaxLon: 30.1, MaxLat: 59.9}, 2, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	formatTiles(&buf, g)

	output := buf.String()
	assert.Contains(t, output, "POINT1")
	assert.Contains(t, output, "30,59.9")
	assert.Contains(t, output, "30.1,59.8")
	assert.Equal(t, 6, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestFormatRun(t *testing.T) {
	run := &model.HarvestRun{
		ID:     "run-1",
		Status: model.RunStatusComplete,
		Stats: model.RunStats{
			Requests: 12, Fetched: 80, Outside: 9, Duplicates: 20, Stored: 51,
			Outcomes: map[string]int{"total_reached": 3, "empty_page": 6},
		},
	}

	var buf bytes.Buffer
	formatRun(&buf, run)

	output := buf.String()
	assert.Contains(t, output, "run-1")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "STORED")
	assert.Contains(t, output, "51")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("empty_page")), bytes.Index(buf.Bytes(), []byte("total_reached")))
}

func TestFormatOverview(t *testing.T) {
	o := report.Overview{
		Total:       3,
		WithAddress: 2,
		WithRubrics: 3,
		TopRubrics:  []report.RubricCount{{Rubric: "Аптеки", Count: 2}},
		Sources:     []report.CategoryCount{{Category: "pharmacy", Count: 3}},
		Bound:       orb.Bound{Min: orb.Point{30.1, 59.8}, Max: orb.Point{30.2, 59.9}},
		Center:      orb.Point{30.15, 59.85},
	}

	var buf bytes.Buffer
	formatOverview(&buf, o)

	output := buf.String()
	assert.Contains(t, output, "TOTAL")
	assert.Contains(t, output, "Аптеки")
	assert.Contains(t, output, "pharmacy")
	assert.Contains(t, output, "30.150000,59.850000")
}

func TestFormatOverview_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatOverview(&buf, report.Overview{})
	assert.Equal(t, "No POIs found.\n", buf.String())
}

func TestFormatDistribution(t *testing.T) {
	var buf bytes.Buffer
	formatDistribution(&buf, "CATEGORY", map[string]int{"unknown": 1, "healthcare": 4, "education": 4})

	output := buf.String()
	iEdu := bytes.Index(buf.Bytes(), []byte("education"))
	iHealth := bytes.Index(buf.Bytes(), []byte("healthcare"))
	iUnknown := bytes.Index(buf.Bytes(), []byte("unknown"))
	assert.Contains(t, output, "CATEGORY")
	assert.Less(t, iEdu, iHealth)
	assert.Less(t, iHealth, iUnknown)
}

func TestFormatClusterSummary(t *testing.T) {
	s := cluster.Summary{Clusters: 2, Noise: 1, Sizes: map[int]int{-1: 1, 0: 5, 1: 3}}

	var buf bytes.Buffer
	formatClusterSummary(&buf, s)

	output := buf.String()
	assert.Contains(t, output, "noise")
	assert.Contains(t, output, "2 clusters, 1 noise points")
}

func TestFormatStoreStats(t *testing.T) {
	last := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

	var buf bytes.Buffer
	formatStoreStats(&buf, &store.Stats{Total: 10, Categorized: 8, Runs: 2, LastCollected: &last})

	output := buf.String()
	assert.Contains(t, output, "CATEGORIZED")
	assert.Contains(t, output, "2025-06-15T10:30:00Z")
}

func TestFormatStoreStats_NeverCollected(t *testing.T) {
	var buf bytes.Buffer
	formatStoreStats(&buf, &store.Stats{})
	assert.Contains(t, buf.String(), "LAST COLLECTED  -")
}

func TestFormatRuns(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(90 * time.Second)
	runs := []model.HarvestRun{
		{
			ID: "abc", Status: model.RunStatusComplete, Mode: "tiled",
			Queries: []string{"pharmacy", "school"}, Stats: model.RunStats{Stored: 40},
			StartedAt: now, FinishedAt: &done,
		},
		{ID: "def", Status: model.RunStatusRunning, Mode: "region", StartedAt: now},
	}

	var buf bytes.Buffer
	formatRuns(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "pharmacy,school")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "1m30s")
	assert.Contains(t, output, "running")
}
