// Package store persists harvested POIs keyed by catalog identifier.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/district-poi/internal/model"
)

// Store is an append-only POI table. Append never overwrites a stored
// identifier; only the enrichment columns are ever updated.
type Store interface {
	// POIs
	LoadIDs(ctx context.Context) ([]string, error)
	Append(ctx context.Context, pois []model.POI) (int, error)
	All(ctx context.Context) ([]model.POI, error)
	UpdateCategories(ctx context.Context, pois []model.POI) error
	UpdateClusters(ctx context.Context, pois []model.POI) error
	Stats(ctx context.Context) (*Stats, error)
	Reset(ctx context.Context) error

	// Harvest runs
	CreateRun(ctx context.Context, mode string, queries []string) (*model.HarvestRun, error)
	CompleteRun(ctx context.Context, run *model.HarvestRun) error
	ListRuns(ctx context.Context, limit int) ([]model.HarvestRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Stats summarizes the store contents.
type Stats struct {
	Total         int        `json:"total"`
	Categorized   int        `json:"categorized"`
	Clustered     int        `json:"clustered"`
	Noise         int        `json:"noise"`
	Runs          int        `json:"runs"`
	LastCollected *time.Time `json:"last_collected,omitempty"`
}

const poiColumns = `id, name, address, lon, lat, rubrics, source_category, source_class, region_id, collected_at, subcategory, category, cluster`

type scannable interface {
	Scan(dest ...any) error
}

func scanPOI(row scannable) (model.POI, error) {
	var (
		p       model.POI
		rubrics string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Address, &p.Lon, &p.Lat, &rubrics,
		&p.SourceCategory, &p.SourceClass, &p.RegionID, &p.CollectedAt,
		&p.Subcategory, &p.Category, &p.Cluster,
	)
	if err != nil {
		return p, eris.Wrap(err, "store: scan poi")
	}
	if rubrics != "" {
		if err := json.Unmarshal([]byte(rubrics), &p.Rubrics); err != nil {
			return p, eris.Wrapf(err, "store: unmarshal rubrics of %s", p.ID)
		}
	}
	p.CollectedAt = p.CollectedAt.UTC()
	return p, nil
}

// poiArgs returns the column values of p in poiColumns order.
func poiArgs(p model.POI) ([]any, error) {
	rubrics := p.Rubrics
	if rubrics == nil {
		rubrics = []model.Rubric{}
	}
	data, err := json.Marshal(rubrics)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal rubrics of %s", p.ID)
	}
	collected := p.CollectedAt
	if collected.IsZero() {
		collected = time.Now()
	}
	return []any{
		p.ID, p.Name, p.Address, p.Lon, p.Lat, string(data),
		p.SourceCategory, p.SourceClass, p.RegionID, collected.UTC(),
		p.Subcategory, p.Category, clusterArg(p.Cluster),
	}, nil
}

// clusterArg maps an unset cluster to NULL.
func clusterArg(c *int) any {
	if c == nil {
		return nil
	}
	return int64(*c)
}

func scanRunFields(id string, status string, mode string, queries, stats string, started time.Time, finished *time.Time) (*model.HarvestRun, error) {
	r := &model.HarvestRun{
		ID:         id,
		Status:     model.RunStatus(status),
		Mode:       mode,
		StartedAt:  started.UTC(),
		FinishedAt: finished,
	}
	if queries != "" {
		if err := json.Unmarshal([]byte(queries), &r.Queries); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal run queries")
		}
	}
	if stats != "" {
		if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal run stats")
		}
	}
	return r, nil
}
