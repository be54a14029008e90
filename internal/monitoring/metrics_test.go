package monitoring

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest()
	m.RecordRequest()
	m.RecordOutcome("empty_page")
	m.RecordOutcome("empty_page")
	m.RecordOutcome("transport_error")
	m.RecordItems("fetched", 30)
	m.RecordItems("outside", 4)
	m.RecordItems("stored", 0)
	m.ObserveQuery(2 * time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(m.requests), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.outcomes.WithLabelValues("empty_page")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.outcomes.WithLabelValues("transport_error")), 1e-9)
	assert.InDelta(t, 30, testutil.ToFloat64(m.items.WithLabelValues("fetched")), 1e-9)
	assert.InDelta(t, 4, testutil.ToFloat64(m.items.WithLabelValues("outside")), 1e-9)
	assert.Equal(t, 2, testutil.CollectAndCount(m.items))
}

func TestMetrics_RecordSnapshot(t *testing.T) {
	m := NewMetrics()
	last := time.Unix(1_700_000_000, 0).UTC()

	m.RecordSnapshot(&Snapshot{POITotal: 50, Categorized: 40, Noise: 3, RunsComplete: 2, RunsFailed: 1, LastCollected: &last})

	assert.InDelta(t, 50, testutil.ToFloat64(m.storeRows.WithLabelValues("total")), 1e-9)
	assert.InDelta(t, 3, testutil.ToFloat64(m.storeRows.WithLabelValues("noise")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("failed")), 1e-9)
	assert.InDelta(t, 1_700_000_000, testutil.ToFloat64(m.lastCollected), 1e-9)
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest()

	path := filepath.Join(t.TempDir(), "poi.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poi_harvest_requests_total 1")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRequest()
	m.RecordOutcome("x")
	m.RecordItems("fetched", 3)
	m.ObserveQuery(time.Second)
	m.RecordSnapshot(&Snapshot{})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile("/nonexistent/x.prom"))
}
