// Package harvest pulls POIs from the catalog query by query, tile by tile,
// keeps the ones inside the district and appends new identifiers to the store.
package harvest

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/district-poi/internal/config"
	"github.com/sells-group/district-poi/internal/dedup"
	"github.com/sells-group/district-poi/internal/grid"
	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/monitoring"
	"github.com/sells-group/district-poi/internal/resilience"
	"github.com/sells-group/district-poi/pkg/catalog"
)

// Harvest modes.
const (
	ModeTiled  = "tiled"
	ModeRegion = "region"
)

// Flush policies.
const (
	FlushPerQuery = "per_query"
	FlushEnd      = "end"
)

// Area is the district the harvester keeps items for.
type Area interface {
	Contains(lon, lat float64) bool
	Bound() grid.BBox
}

// Store is the part of the POI store the harvester writes to.
type Store interface {
	LoadIDs(ctx context.Context) ([]string, error)
	Append(ctx context.Context, pois []model.POI) (int, error)
	CreateRun(ctx context.Context, mode string, queries []string) (*model.HarvestRun, error)
	CompleteRun(ctx context.Context, run *model.HarvestRun) error
}

// Sink receives the unique in-district items of every finished query.
type Sink interface {
	WriteQuery(q config.QuerySpec, pois []model.POI) error
}

// Harvester runs configured queries against the catalog.
type Harvester struct {
	client  catalog.Client
	store   Store
	deduper *dedup.Deduper
	area    Area
	cfg     config.HarvestConfig
	flush   string

	limiter *rate.Limiter
	breaker *resilience.Breaker
	retry   resilience.RetryPolicy
	sink    Sink
	metrics *monitoring.Metrics
	now     func() time.Time
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithSink sets a per-query output sink.
func WithSink(s Sink) Option {
	return func(h *Harvester) { h.sink = s }
}

// WithMetrics records request and item counters.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Harvester) { h.metrics = m }
}

// WithFlush sets the store flush policy (FlushPerQuery or FlushEnd).
func WithFlush(policy string) Option {
	return func(h *Harvester) { h.flush = policy }
}

// WithClock overrides the timestamp source for collected_at.
func WithClock(now func() time.Time) Option {
	return func(h *Harvester) { h.now = now }
}

// New creates a Harvester. Pacing, retries and the circuit breaker threshold
// come from cfg.
func New(client catalog.Client, st Store, d *dedup.Deduper, area Area, cfg config.HarvestConfig, opts ...Option) *Harvester {
	h := &Harvester{
		client:  client,
		store:   st,
		deduper: d,
		area:    area,
		cfg:     cfg,
		flush:   FlushPerQuery,
		limiter: rate.NewLimiter(every(cfg.PageDelayMs), 1),
		retry:   resilience.WithRetries(cfg.Retries),
		now:     func() time.Time { return time.Now().UTC() },
	}
	h.retry.OnRetry = resilience.LogRetries(zap.L().With(zap.String("component", "harvest")), "search_items")
	h.breaker = resilience.NewBreaker(resilience.BreakerConfig{
		Threshold: cfg.CircuitThreshold,
		Counts:    resilience.IsTransient,
		OnChange: func(from, to resilience.BreakerState) {
			zap.L().Warn("harvest: circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	for _, o := range opts {
		o(h)
	}
	return h
}

func every(ms int) rate.Limit {
	if ms <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Duration(ms) * time.Millisecond)
}

// scope is one search area: a tile, or the whole region.
type scope struct {
	tile  *grid.Tile
	label string
}

func (h *Harvester) scopes() ([]scope, error) {
	if h.cfg.Mode == ModeRegion {
		return []scope{{label: "region " + h.cfg.RegionID}}, nil
	}
	g, err := grid.Partition(h.area.Bound(), h.cfg.NX, h.cfg.NY)
	if err != nil {
		return nil, eris.Wrap(err, "harvest: partition boundary")
	}
	out := make([]scope, 0, len(g.Tiles))
	for i := range g.Tiles {
		t := g.Tiles[i]
		out = append(out, scope{tile: &t, label: t.String()})
	}
	return out, nil
}

// Run executes queries in order and records a harvest run. Cancellation ends
// the run early; everything collected so far is still flushed. The run is
// returned even when err is non-nil.
func (h *Harvester) Run(ctx context.Context, queries []config.QuerySpec) (*model.HarvestRun, error) {
	if err := validateQueries(queries); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "harvest"), zap.String("mode", h.cfg.Mode))

	scopes, err := h.scopes()
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(queries))
	for _, q := range queries {
		labels = append(labels, q.Label())
	}
	run, err := h.store.CreateRun(ctx, h.cfg.Mode, labels)
	if err != nil {
		return nil, eris.Wrap(err, "harvest: create run")
	}

	// Bookkeeping and flushes outlive a cancel so partial work is kept.
	persistCtx := context.WithoutCancel(ctx)
	runErr := h.run(ctx, persistCtx, run, queries, scopes, log)

	switch {
	case runErr != nil:
		run.Status = model.RunStatusFailed
	case ctx.Err() != nil:
		run.Status = model.RunStatusCanceled
	default:
		run.Status = model.RunStatusComplete
	}
	if err := h.store.CompleteRun(persistCtx, run); err != nil {
		log.Error("harvest: failed to record run completion", zap.Error(err))
	}

	log.Info("harvest run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("requests", run.Stats.Requests),
		zap.Int("fetched", run.Stats.Fetched),
		zap.Int("outside", run.Stats.Outside),
		zap.Int("duplicates", run.Stats.Duplicates),
		zap.Int("stored", run.Stats.Stored),
	)
	return run, runErr
}

func (h *Harvester) run(ctx, persistCtx context.Context, run *model.HarvestRun, queries []config.QuerySpec, scopes []scope, log *zap.Logger) error {
	ids, err := h.store.LoadIDs(ctx)
	if err != nil {
		return eris.Wrap(err, "harvest: load known ids")
	}
	if err := h.deduper.Seed(ctx, ids); err != nil {
		return err
	}
	log.Info("harvest starting",
		zap.Int("known_ids", len(ids)),
		zap.Int("queries", len(queries)),
		zap.Int("scopes", len(scopes)),
	)

	var pending []model.POI
	failed, attempted := 0, 0
	for i, q := range queries {
		if i > 0 && !pause(ctx, h.cfg.QueryDelayMs) {
			break
		}
		attempted++

		res := h.harvestQuery(ctx, q, scopes)
		stats := res.stats

		if h.sink != nil && len(res.pois) > 0 {
			if err := h.sink.WriteQuery(q, res.pois); err != nil {
				log.Warn("harvest: per-query output failed", zap.String("query", q.Label()), zap.Error(err))
			}
		}

		fresh, dups, err := h.deduper.Filter(persistCtx, res.pois)
		if err != nil {
			run.Stats.Add(stats)
			return err
		}
		stats.Duplicates += dups
		h.metrics.RecordItems("duplicate", stats.Duplicates)

		if h.flush == FlushEnd {
			pending = append(pending, fresh...)
		} else if len(fresh) > 0 {
			n, err := h.persist(persistCtx, fresh)
			if err != nil {
				run.Stats.Add(stats)
				return eris.Wrapf(err, "harvest: append %s", q.Label())
			}
			stats.Stored = n
			h.metrics.RecordItems("stored", n)
		}
		run.Stats.Add(stats)

		if res.failed {
			failed++
		}
		log.Info("query finished",
			zap.String("query", q.Label()),
			zap.String("code", q.Code),
			zap.Int("fetched", stats.Fetched),
			zap.Int("kept", len(fresh)),
			zap.Int("duplicates", stats.Duplicates),
			zap.Int("stored", stats.Stored),
			zap.Bool("failed", res.failed),
		)

		if ctx.Err() != nil {
			break
		}
	}

	if h.flush == FlushEnd && len(pending) > 0 {
		n, err := h.persist(persistCtx, pending)
		if err != nil {
			return eris.Wrap(err, "harvest: append buffered items")
		}
		run.Stats.Stored += n
		h.metrics.RecordItems("stored", n)
	}

	if attempted > 0 && failed == attempted && ctx.Err() == nil {
		return eris.Errorf("harvest: all %d queries failed", attempted)
	}
	return nil
}

// persist appends pois to the store and only then records their identifiers
// in the index.
func (h *Harvester) persist(ctx context.Context, pois []model.POI) (int, error) {
	pois = dedup.Unique(pois)
	n, err := h.store.Append(ctx, pois)
	if err != nil {
		return 0, err
	}
	if err := h.deduper.Commit(ctx, pois); err != nil {
		return n, err
	}
	return n, nil
}

type queryResult struct {
	pois   []model.POI
	stats  model.RunStats
	failed bool
}

// harvestQuery runs one query over every scope. The query counts as failed
// when no scope finished normally.
func (h *Harvester) harvestQuery(ctx context.Context, q config.QuerySpec, scopes []scope) queryResult {
	start := time.Now()
	defer func() { h.metrics.ObserveQuery(time.Since(start)) }()

	// An open circuit from an earlier query must not starve this one.
	h.breaker.Reset()

	var res queryResult
	res.stats.Outcomes = make(map[string]int)
	done := 0
	for i, sc := range scopes {
		if i > 0 && !pause(ctx, h.cfg.TileDelayMs) {
			break
		}

		items, requests, outcome := h.fetchPages(ctx, q, sc)
		res.stats.Requests += requests
		res.stats.Fetched += len(items)
		res.stats.Outcomes[outcome.String()]++
		h.metrics.RecordOutcome(outcome.String())
		h.metrics.RecordItems("fetched", len(items))
		if outcome.Done() {
			done++
		}

		for _, it := range items {
			p, ok := h.keep(it, q)
			if !ok {
				res.stats.Outside++
				continue
			}
			res.pois = append(res.pois, p)
		}

		if outcome == OutcomeCanceled {
			break
		}
	}
	h.metrics.RecordItems("outside", res.stats.Outside)

	before := len(res.pois)
	res.pois = dedup.Unique(res.pois)
	res.stats.Duplicates = before - len(res.pois)
	res.failed = done == 0
	return res
}

// fetchPages pages through one scope until the catalog runs dry, the
// reported total is reached or the page bound is hit. On failure the items
// collected so far are returned with the failure outcome.
func (h *Harvester) fetchPages(ctx context.Context, q config.QuerySpec, sc scope) ([]catalog.Item, int, Outcome) {
	log := zap.L().With(
		zap.String("component", "harvest"),
		zap.String("query", q.Label()),
		zap.String("scope", sc.label),
	)

	params := catalog.SearchParams{
		Query:    q.Text,
		RubricID: q.RubricID,
		PageSize: h.cfg.PageSize,
	}
	if sc.tile != nil {
		params.Point1, params.Point2 = sc.tile.Point1(), sc.tile.Point2()
	} else {
		params.RegionID = h.cfg.RegionID
	}

	var items []catalog.Item
	requests := 0
	for page := 1; page <= h.cfg.MaxPages; page++ {
		if err := h.limiter.Wait(ctx); err != nil {
			return items, requests, OutcomeCanceled
		}

		params.Page = page
		result, err := resilience.Retry(ctx, h.retry, func(ctx context.Context) (*catalog.Page, error) {
			return resilience.Guard(ctx, h.breaker, func(ctx context.Context) (*catalog.Page, error) {
				requests++
				h.metrics.RecordRequest()
				return h.client.SearchItems(ctx, params)
			})
		})
		if err != nil {
			outcome := outcomeOf(ctx, err)
			fields := []zap.Field{zap.Int("page", page), zap.String("outcome", outcome.String()), zap.Error(err)}
			var ce *catalog.Error
			if errors.As(err, &ce) && ce.Body != "" {
				fields = append(fields, zap.String("body", ce.Body))
			}
			log.Warn("harvest: page request failed", fields...)
			return items, requests, outcome
		}

		if len(result.Items) == 0 {
			log.Debug("empty page", zap.Int("page", page))
			return items, requests, OutcomeEmptyPage
		}
		items = append(items, result.Items...)
		log.Debug("page fetched",
			zap.Int("page", page),
			zap.Int("items", len(result.Items)),
			zap.Int("total", result.Total),
		)
		if result.Total > 0 && len(items) >= result.Total {
			return items, requests, OutcomeTotalReached
		}
	}
	return items, requests, OutcomePageLimit
}

// keep converts an item and reports whether it belongs to the district.
func (h *Harvester) keep(it catalog.Item, q config.QuerySpec) (model.POI, bool) {
	if it.ID == "" || it.Point == nil {
		return model.POI{}, false
	}
	if !h.area.Contains(it.Point.Lon, it.Point.Lat) {
		return model.POI{}, false
	}
	if h.cfg.Mode == ModeRegion && it.RegionID != "" && it.RegionID != h.cfg.RegionID {
		return model.POI{}, false
	}

	p := model.POI{
		ID:             it.ID,
		Name:           it.Name,
		Address:        it.DisplayAddress(),
		Lon:            it.Point.Lon,
		Lat:            it.Point.Lat,
		SourceCategory: sourceCategory(q),
		SourceClass:    q.Class,
		RegionID:       it.RegionID,
		CollectedAt:    h.now(),
	}
	if p.RegionID == "" && h.cfg.Mode == ModeRegion {
		p.RegionID = h.cfg.RegionID
	}
	for _, r := range it.Rubrics {
		p.Rubrics = append(p.Rubrics, model.Rubric{ID: r.ID, Name: r.Name, Alias: r.Alias, Kind: r.Kind})
	}
	return p, true
}

// pause sleeps for ms milliseconds and reports false if ctx ended first.
func pause(ctx context.Context, ms int) bool {
	if ms <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
