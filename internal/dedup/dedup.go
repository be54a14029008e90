package dedup

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/district-poi/internal/model"
)

// Deduper applies the first-write-wins rule against an Index. Identifiers
// accepted by Filter stay pending in memory until Commit records them in the
// index, so the index only ever holds identifiers that reached the store.
type Deduper struct {
	index   Index
	pending map[string]struct{}
}

// New creates a Deduper over index.
func New(index Index) *Deduper {
	return &Deduper{index: index, pending: make(map[string]struct{})}
}

// Seed marks the identifiers already persisted in the store as known.
func (d *Deduper) Seed(ctx context.Context, ids []string) error {
	if err := d.index.Add(ctx, ids...); err != nil {
		return eris.Wrap(err, "dedup: seed index")
	}
	return nil
}

// Filter returns the records whose identifiers were neither indexed nor
// pending, in input order, and marks them pending. Repeats inside pois are
// dropped too.
func (d *Deduper) Filter(ctx context.Context, pois []model.POI) ([]model.POI, int, error) {
	kept := make([]model.POI, 0, len(pois))
	dups := 0
	for _, p := range pois {
		if p.ID == "" {
			dups++
			continue
		}
		if _, ok := d.pending[p.ID]; ok {
			dups++
			continue
		}
		known, err := d.index.Has(ctx, p.ID)
		if err != nil {
			return kept, dups, eris.Wrapf(err, "dedup: lookup %s", p.ID)
		}
		if known {
			dups++
			continue
		}
		d.pending[p.ID] = struct{}{}
		kept = append(kept, p)
	}
	return kept, dups, nil
}

// Commit records the identifiers of pois, which the caller has just
// persisted, in the index.
func (d *Deduper) Commit(ctx context.Context, pois []model.POI) error {
	if len(pois) == 0 {
		return nil
	}
	ids := make([]string, 0, len(pois))
	for _, p := range pois {
		ids = append(ids, p.ID)
	}
	if err := d.index.Add(ctx, ids...); err != nil {
		return eris.Wrap(err, "dedup: commit ids")
	}
	for _, id := range ids {
		delete(d.pending, id)
	}
	return nil
}

// Known returns the number of indexed and pending identifiers.
func (d *Deduper) Known(ctx context.Context) (int, error) {
	n, err := d.index.Len(ctx)
	if err != nil {
		return 0, err
	}
	return n + len(d.pending), nil
}

// Unique keeps the first record of every identifier, preserving order.
func Unique(pois []model.POI) []model.POI {
	seen := make(map[string]struct{}, len(pois))
	out := make([]model.POI, 0, len(pois))
	for _, p := range pois {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
