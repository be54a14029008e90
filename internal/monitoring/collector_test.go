package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/store"
)

type mockStats struct {
	stats    *store.Stats
	runs     []model.HarvestRun
	statsErr error
	listErr  error
	limit    int
}

func (m *mockStats) Stats(context.Context) (*store.Stats, error) {
	return m.stats, m.statsErr
}

func (m *mockStats) ListRuns(_ context.Context, limit int) ([]model.HarvestRun, error) {
	m.limit = limit
	return m.runs, m.listErr
}

func TestCollector_Collect(t *testing.T) {
	last := time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
	src := &mockStats{
		stats: &store.Stats{Total: 120, Categorized: 100, Clustered: 90, Noise: 12, LastCollected: &last},
		runs: []model.HarvestRun{
			{ID: "a", Status: model.RunStatusComplete},
			{ID: "b", Status: model.RunStatusComplete},
			{ID: "c", Status: model.RunStatusFailed},
			{ID: "d", Status: model.RunStatusCanceled},
			{ID: "e", Status: model.RunStatusRunning},
		},
	}

	snap, err := NewCollector(src, 0).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1000, src.limit)
	assert.Equal(t, 120, snap.POITotal)
	assert.Equal(t, 100, snap.Categorized)
	assert.Equal(t, 12, snap.Noise)
	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsCanceled)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Equal(t, &last, snap.LastCollected)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_StatsError(t *testing.T) {
	src := &mockStats{statsErr: errors.New("db gone")}

	_, err := NewCollector(src, 10).Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: store stats")
}

func TestCollector_ListRunsError(t *testing.T) {
	src := &mockStats{stats: &store.Stats{}, listErr: errors.New("db gone")}

	_, err := NewCollector(src, 10).Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
