package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/store"
)

// Snapshot holds a point-in-time view of the store and recent harvest runs.
type Snapshot struct {
	POITotal    int `json:"poi_total"`
	Categorized int `json:"categorized"`
	Clustered   int `json:"clustered"`
	Noise       int `json:"noise"`

	RunsTotal    int `json:"runs_total"`
	RunsComplete int `json:"runs_complete"`
	RunsFailed   int `json:"runs_failed"`
	RunsCanceled int `json:"runs_canceled"`
	RunsRunning  int `json:"runs_running"`

	LastCollected *time.Time `json:"last_collected,omitempty"`
	CollectedAt   time.Time  `json:"collected_at"`
}

// StatsSource is the subset of store.Store the collector reads.
type StatsSource interface {
	Stats(ctx context.Context) (*store.Stats, error)
	ListRuns(ctx context.Context, limit int) ([]model.HarvestRun, error)
}

// Collector gathers snapshots from the store.
type Collector struct {
	store   StatsSource
	maxRuns int
}

// NewCollector creates a collector that inspects at most maxRuns recent runs.
func NewCollector(st StatsSource, maxRuns int) *Collector {
	if maxRuns <= 0 {
		maxRuns = 1000
	}
	return &Collector{store: st, maxRuns: maxRuns}
}

// Collect gathers a snapshot.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: store stats")
	}

	snap := &Snapshot{
		POITotal:      stats.Total,
		Categorized:   stats.Categorized,
		Clustered:     stats.Clustered,
		Noise:         stats.Noise,
		LastCollected: stats.LastCollected,
		CollectedAt:   time.Now().UTC(),
	}

	runs, err := c.store.ListRuns(ctx, c.maxRuns)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusCanceled:
			snap.RunsCanceled++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
	}

	return snap, nil
}
