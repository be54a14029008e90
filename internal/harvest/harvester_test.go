package harvest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/district-poi/internal/boundary"
	"github.com/sells-group/district-poi/internal/config"
	"github.com/sells-group/district-poi/internal/dedup"
	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/resilience"
	"github.com/sells-group/district-poi/pkg/catalog"
	"github.com/sells-group/district-poi/pkg/catalog/mocks"
)

type fakeStore struct {
	ids       []string
	appended  [][]model.POI
	completed *model.HarvestRun
	appendErr error
}

func (f *fakeStore) LoadIDs(context.Context) ([]string, error) { return f.ids, nil }

func (f *fakeStore) Append(_ context.Context, pois []model.POI) (int, error) {
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	f.appended = append(f.appended, pois)
	return len(pois), nil
}

func (f *fakeStore) CreateRun(_ context.Context, mode string, queries []string) (*model.HarvestRun, error) {
	return &model.HarvestRun{ID: "run-1", Status: model.RunStatusRunning, Mode: mode, Queries: queries}, nil
}

func (f *fakeStore) CompleteRun(_ context.Context, run *model.HarvestRun) error {
	f.completed = run
	return nil
}

func (f *fakeStore) storedIDs() []string {
	var ids []string
	for _, batch := range f.appended {
		for _, p := range batch {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func testArea(t *testing.T) *boundary.Boundary {
	t.Helper()
	ring := orb.Ring{{30.0, 59.8}, {30.1, 59.8}, {30.1, 59.9}, {30.0, 59.9}, {30.0, 59.8}}
	b, err := boundary.New(orb.MultiPolygon{{ring}})
	require.NoError(t, err)
	return b
}

func testConfig() config.HarvestConfig {
	return config.HarvestConfig{
		Mode:             ModeTiled,
		NX:               2,
		NY:               1,
		RegionID:         "38",
		PageSize:         2,
		MaxPages:         5,
		CircuitThreshold: 5,
	}
}

func item(id string, lon, lat float64) catalog.Item {
	return catalog.Item{
		ID:          id,
		Name:        "Объект " + id,
		AddressName: "Стачек проспект, " + id,
		Point:       &catalog.Point{Lon: lon, Lat: lat},
		Rubrics:     []catalog.Rubric{{ID: "207", Name: "Аптеки"}},
	}
}

var pharmacy = config.QuerySpec{Code: "pharmacy", Class: "health", Text: "аптека"}

func westTile(page int) interface{} {
	return mock.MatchedBy(func(p catalog.SearchParams) bool {
		return strings.HasPrefix(p.Point1, "30,") && p.Page == page
	})
}

func eastTile(page int) interface{} {
	return mock.MatchedBy(func(p catalog.SearchParams) bool {
		return p.Point1 != "" && !strings.HasPrefix(p.Point1, "30,") && p.Page == page
	})
}

func fixedClock() time.Time { return time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC) }

func newTestHarvester(t *testing.T, client catalog.Client, st Store, cfg config.HarvestConfig, opts ...Option) *Harvester {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return New(client, st, dedup.New(dedup.NewMemoryIndex()), testArea(t), cfg, opts...)
}

func TestRun_TiledFiltersAndDedups(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, westTile(1)).
		Return(&catalog.Page{Total: 3, Items: []catalog.Item{item("a", 30.01, 59.85), item("b", 31.0, 59.85)}}, nil).Once()
	client.On("SearchItems", mock.Anything, westTile(2)).
		Return(&catalog.Page{Total: 3, Items: []catalog.Item{item("c", 30.02, 59.81)}}, nil).Once()
	client.On("SearchItems", mock.Anything, eastTile(1)).
		Return(&catalog.Page{Total: 2, Items: []catalog.Item{item("a", 30.01, 59.85), item("d", 30.07, 59.88)}}, nil).Once()

	st := &fakeStore{ids: []string{"d"}}
	h := newTestHarvester(t, client, st, testConfig())

	run, err := h.Run(context.Background(), []config.QuerySpec{pharmacy})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, st.storedIDs())
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 3, run.Stats.Requests)
	assert.Equal(t, 5, run.Stats.Fetched)
	assert.Equal(t, 1, run.Stats.Outside)
	assert.Equal(t, 2, run.Stats.Duplicates)
	assert.Equal(t, 2, run.Stats.Stored)
	assert.Equal(t, map[string]int{"total_reached": 2}, run.Stats.Outcomes)
	assert.Same(t, run, st.completed)

	p := st.appended[0][0]
	assert.Equal(t, "pharmacy", p.SourceCategory)
	assert.Equal(t, "health", p.SourceClass)
	assert.Equal(t, "Стачек проспект, a", p.Address)
	assert.Equal(t, fixedClock(), p.CollectedAt)
	assert.Equal(t, []string{"207"}, p.RubricIDs())
}

func TestRun_QueryParams(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, mock.MatchedBy(func(p catalog.SearchParams) bool {
		return p.RubricID == "168" && p.Query == "" && p.PageSize == 2 && p.Point2 != "" && p.RegionID == ""
	})).Return(&catalog.Page{}, nil).Twice()

	st := &fakeStore{}
	h := newTestHarvester(t, client, st, testConfig())
	run, err := h.Run(context.Background(), []config.QuerySpec{{Code: "parks", RubricID: "168"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"empty_page": 2}, run.Stats.Outcomes)
	assert.Equal(t, []string{"rubric:168"}, run.Queries)
}

func TestRun_RegionMode(t *testing.T) {
	client := mocks.NewMockClient(t)
	inRegion := item("a", 30.05, 59.85)
	inRegion.RegionID = "38"
	otherRegion := item("b", 30.06, 59.85)
	otherRegion.RegionID = "32"
	noRegion := item("c", 30.07, 59.85)

	client.On("SearchItems", mock.Anything, mock.MatchedBy(func(p catalog.SearchParams) bool {
		return p.RegionID == "38" && p.Point1 == "" && p.Point2 == "" && p.Page == 1
	})).Return(&catalog.Page{Total: 3, Items: []catalog.Item{inRegion, otherRegion, noRegion}}, nil).Once()

	cfg := testConfig()
	cfg.Mode = ModeRegion
	st := &fakeStore{}
	h := newTestHarvester(t, client, st, cfg)

	run, err := h.Run(context.Background(), []config.QuerySpec{pharmacy})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, st.storedIDs())
	assert.Equal(t, "38", st.appended[0][1].RegionID)
	assert.Equal(t, 1, run.Stats.Outside)
	assert.Equal(t, ModeRegion, run.Mode)
}

func TestRun_PageLimit(t *testing.T) {
	client := mocks.NewMockClient(t)
	n := 0
	client.On("SearchItems", mock.Anything, mock.Anything).Return(
		func(_ context.Context, p catalog.SearchParams) (*catalog.Page, error) {
			n++
			lon := 30.01
			if !strings.HasPrefix(p.Point1, "30,") {
				lon = 30.06
			}
			return &catalog.Page{Total: 100, Items: []catalog.Item{
				item(p.Point1+"-"+string(rune('0'+p.Page))+"-x", lon, 59.85),
				item(p.Point1+"-"+string(rune('0'+p.Page))+"-y", lon, 59.86),
			}}, nil
		})

	cfg := testConfig()
	cfg.MaxPages = 2
	st := &fakeStore{}
	h := newTestHarvester(t, client, st, cfg)

	run, err := h.Run(context.Background(), []config.QuerySpec{pharmacy})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, map[string]int{"page_limit": 2}, run.Stats.Outcomes)
	assert.Len(t, st.storedIDs(), 8)
}

func TestRun_TransportErrorKeepsCollected(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, westTile(1)).
		Return(&catalog.Page{Total: 20, Items: []catalog.Item{item("a", 30.01, 59.85), item("b", 30.02, 59.85)}}, nil).Once()
	client.On("SearchItems", mock.Anything, westTile(2)).
		Return(nil, &catalog.Error{Kind: catalog.KindTransport, Err: errors.New("connection reset by peer")}).Once()
	client.On("SearchItems", mock.Anything, eastTile(1)).
		Return(nil, &catalog.Error{Kind: catalog.KindMalformed, Body: "{oops", Err: errors.New("catalog: unmarshal response")}).Once()

	st := &fakeStore{}
	h := newTestHarvester(t, client, st, testConfig())

	run, err := h.Run(context.Background(), []config.QuerySpec{pharmacy})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 1 queries failed")
	assert.Equal(t, []string{"a", "b"}, st.storedIDs())
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, map[string]int{"transport_error": 1, "malformed": 1}, run.Stats.Outcomes)
}

func TestRun_OneFailedQueryIsNotFatal(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, mock.MatchedBy(func(p catalog.SearchParams) bool { return p.Query == "аптека" })).
		Return(nil, &catalog.Error{Kind: catalog.KindAPI, Err: errors.New("catalog: api error 400: bad")})
	client.On("SearchItems", mock.Anything, mock.MatchedBy(func(p catalog.SearchParams) bool { return p.Query == "кафе" })).
		Return(&catalog.Page{}, nil)

	h := newTestHarvester(t, client, &fakeStore{}, testConfig())
	run, err := h.Run(context.Background(), []config.QuerySpec{pharmacy, {Code: "cafe", Text: "кафе"}})
	require.NoError(t, err)
	assert.Equal(t, 2, run.Stats.Outcomes["api_error"])
	assert.Equal(t, 2, run.Stats.Outcomes["empty_page"])
}

func unavailable() error {
	return &catalog.Error{
		Kind:       catalog.KindHTTPStatus,
		StatusCode: 503,
		Err:        resilience.NewTransientError(errors.New("catalog: unexpected status 503"), 503),
	}
}

func TestRun_CircuitOpens(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, westTile(1)).Return(nil, unavailable()).Once()

	cfg := testConfig()
	cfg.CircuitThreshold = 1
	h := newTestHarvester(t, client, &fakeStore{}, cfg)

	run, err := h.Run(context.Background(), []config.QuerySpec{pharmacy})
	require.Error(t, err)
	assert.Equal(t, map[string]int{"api_error": 1, "circuit_open": 1}, run.Stats.Outcomes)
	assert.Equal(t, 1, run.Stats.Requests, "the rejected request never reaches the client")
}

func TestRun_APIErrorsDoNotOpenCircuit(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, mock.MatchedBy(func(p catalog.SearchParams) bool { return p.RubricID == "999" })).
		Return(nil, &catalog.Error{Kind: catalog.KindAPI, StatusCode: 400, Err: errors.New("catalog: api error 400: Rubric not found")}).Twice()
	client.On("SearchItems", mock.Anything, mock.MatchedBy(func(p catalog.SearchParams) bool {
		return p.Query == "аптека" && strings.HasPrefix(p.Point1, "30,") && p.Page == 1
	})).Return(&catalog.Page{Total: 1, Items: []catalog.Item{item("good", 30.01, 59.85)}}, nil).Once()
	client.On("SearchItems", mock.Anything, mock.MatchedBy(func(p catalog.SearchParams) bool {
		return p.Query == "аптека" && !strings.HasPrefix(p.Point1, "30,") && p.Page == 1
	})).Return(&catalog.Page{}, nil).Once()

	cfg := testConfig()
	cfg.CircuitThreshold = 1
	st := &fakeStore{}
	h := newTestHarvester(t, client, st, cfg)

	run, err := h.Run(context.Background(), []config.QuerySpec{{Code: "missing", RubricID: "999"}, pharmacy})
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, st.storedIDs())
	assert.Equal(t, map[string]int{"api_error": 2, "total_reached": 1, "empty_page": 1}, run.Stats.Outcomes)
	assert.Equal(t, 4, run.Stats.Requests)
}

func TestRun_CircuitResetsBetweenQueries(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, mock.MatchedBy(func(p catalog.SearchParams) bool { return p.Query == "кафе" })).
		Return(nil, unavailable()).Once()
	client.On("SearchItems", mock.Anything, mock.MatchedBy(func(p catalog.SearchParams) bool {
		return p.Query == "аптека" && strings.HasPrefix(p.Point1, "30,") && p.Page == 1
	})).Return(&catalog.Page{Total: 1, Items: []catalog.Item{item("good", 30.01, 59.85)}}, nil).Once()
	client.On("SearchItems", mock.Anything, mock.MatchedBy(func(p catalog.SearchParams) bool {
		return p.Query == "аптека" && !strings.HasPrefix(p.Point1, "30,") && p.Page == 1
	})).Return(&catalog.Page{}, nil).Once()

	cfg := testConfig()
	cfg.CircuitThreshold = 1
	st := &fakeStore{}
	h := newTestHarvester(t, client, st, cfg)

	run, err := h.Run(context.Background(), []config.QuerySpec{{Code: "cafe", Text: "кафе"}, pharmacy})
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, st.storedIDs())
	assert.Equal(t, map[string]int{"api_error": 1, "circuit_open": 1, "total_reached": 1, "empty_page": 1}, run.Stats.Outcomes)
}

func TestRun_ZeroTotalKeepsPaging(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, westTile(1)).
		Return(&catalog.Page{Items: []catalog.Item{item("a", 30.01, 59.85)}}, nil).Once()
	client.On("SearchItems", mock.Anything, westTile(2)).
		Return(&catalog.Page{Items: []catalog.Item{item("b", 30.02, 59.85)}}, nil).Once()
	client.On("SearchItems", mock.Anything, westTile(3)).Return(&catalog.Page{}, nil).Once()
	client.On("SearchItems", mock.Anything, eastTile(1)).Return(&catalog.Page{}, nil).Once()

	st := &fakeStore{}
	h := newTestHarvester(t, client, st, testConfig())

	run, err := h.Run(context.Background(), []config.QuerySpec{pharmacy})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, st.storedIDs())
	assert.Equal(t, 4, run.Stats.Requests)
	assert.Equal(t, map[string]int{"empty_page": 2}, run.Stats.Outcomes)
}

func TestRun_RetriesTransient(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, westTile(1)).Return(nil, unavailable()).Once()
	client.On("SearchItems", mock.Anything, westTile(1)).
		Return(&catalog.Page{Total: 1, Items: []catalog.Item{item("a", 30.01, 59.85)}}, nil).Once()
	client.On("SearchItems", mock.Anything, eastTile(1)).Return(&catalog.Page{}, nil).Once()

	cfg := testConfig()
	cfg.Retries = 2
	st := &fakeStore{}
	h := newTestHarvester(t, client, st, cfg)
	h.retry.Backoff = time.Millisecond
	h.retry.Jitter = 0

	run, err := h.Run(context.Background(), []config.QuerySpec{pharmacy})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, st.storedIDs())
	assert.Equal(t, 3, run.Stats.Requests)
}

func TestRun_FlushEnd(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, westTile(1)).
		Return(&catalog.Page{Total: 1, Items: []catalog.Item{item("a", 30.01, 59.85)}}, nil)
	client.On("SearchItems", mock.Anything, eastTile(1)).
		Return(&catalog.Page{Total: 1, Items: []catalog.Item{item("b", 30.06, 59.85)}}, nil)

	st := &fakeStore{}
	h := newTestHarvester(t, client, st, testConfig(), WithFlush(FlushEnd))

	run, err := h.Run(context.Background(), []config.QuerySpec{pharmacy, {Code: "cafe", Text: "кафе"}})
	require.NoError(t, err)
	require.Len(t, st.appended, 1, "end flush appends once")
	assert.Equal(t, []string{"a", "b"}, st.storedIDs())
	assert.Equal(t, 2, run.Stats.Stored)
	assert.Equal(t, 2, run.Stats.Duplicates, "second query only sees known ids")
}

func TestRun_PerQueryFlush(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, westTile(1)).
		Return(&catalog.Page{Total: 1, Items: []catalog.Item{item("a", 30.01, 59.85)}}, nil)
	client.On("SearchItems", mock.Anything, eastTile(1)).Return(&catalog.Page{}, nil)

	st := &fakeStore{}
	h := newTestHarvester(t, client, st, testConfig())

	_, err := h.Run(context.Background(), []config.QuerySpec{pharmacy, {Code: "cafe", Text: "кафе"}})
	require.NoError(t, err)
	require.Len(t, st.appended, 1, "nothing new to append after the second query")
	assert.Len(t, st.appended[0], 1)
}

func TestRun_AppendErrorFails(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, mock.Anything).
		Return(&catalog.Page{Total: 1, Items: []catalog.Item{item("a", 30.01, 59.85)}}, nil)

	st := &fakeStore{appendErr: errors.New("disk full")}
	h := newTestHarvester(t, client, st, testConfig())

	run, err := h.Run(context.Background(), []config.QuerySpec{pharmacy})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, run, st.completed)
}

func TestRun_FailedAppendLeavesIndexClean(t *testing.T) {
	for _, flush := range []string{FlushPerQuery, FlushEnd} {
		t.Run(flush, func(t *testing.T) {
			client := mocks.NewMockClient(t)
			client.On("SearchItems", mock.Anything, westTile(1)).
				Return(&catalog.Page{Total: 1, Items: []catalog.Item{item("a", 30.01, 59.85)}}, nil)
			client.On("SearchItems", mock.Anything, eastTile(1)).Return(&catalog.Page{}, nil)

			idx := dedup.NewMemoryIndex()

			broken := &fakeStore{appendErr: errors.New("disk full")}
			first := New(client, broken, dedup.New(idx), testArea(t), testConfig(), WithClock(fixedClock), WithFlush(flush))
			_, err := first.Run(context.Background(), []config.QuerySpec{pharmacy})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "disk full")

			n, err := idx.Len(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n, "nothing was persisted")

			healthy := &fakeStore{}
			second := New(client, healthy, dedup.New(idx), testArea(t), testConfig(), WithClock(fixedClock), WithFlush(flush))
			run, err := second.Run(context.Background(), []config.QuerySpec{pharmacy})
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, healthy.storedIDs())
			assert.Zero(t, run.Stats.Duplicates)
			assert.Equal(t, 1, run.Stats.Stored)
		})
	}
}

func TestRun_Canceled(t *testing.T) {
	client := mocks.NewMockClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := &fakeStore{}
	h := newTestHarvester(t, client, st, testConfig())

	run, err := h.Run(ctx, []config.QuerySpec{pharmacy, {Code: "cafe", Text: "кафе"}})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCanceled, run.Status)
	assert.Equal(t, map[string]int{"canceled": 1}, run.Stats.Outcomes)
	assert.NotNil(t, st.completed)
	client.AssertNotCalled(t, "SearchItems", mock.Anything, mock.Anything)
}

func TestRun_InvalidQueries(t *testing.T) {
	h := newTestHarvester(t, mocks.NewMockClient(t), &fakeStore{}, testConfig())

	_, err := h.Run(context.Background(), nil)
	require.Error(t, err)

	_, err = h.Run(context.Background(), []config.QuerySpec{{Code: "empty"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither text nor rubric_id")
}

func TestRun_InvalidGrid(t *testing.T) {
	cfg := testConfig()
	cfg.NX = 0
	h := newTestHarvester(t, mocks.NewMockClient(t), &fakeStore{}, cfg)

	_, err := h.Run(context.Background(), []config.QuerySpec{pharmacy})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "harvest: partition boundary")
}

type recordingSink struct {
	queries []string
	counts  []int
}

func (s *recordingSink) WriteQuery(q config.QuerySpec, pois []model.POI) error {
	s.queries = append(s.queries, q.Code)
	s.counts = append(s.counts, len(pois))
	return errors.New("ignored")
}

func TestRun_SinkReceivesKnownItemsToo(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("SearchItems", mock.Anything, westTile(1)).
		Return(&catalog.Page{Total: 2, Items: []catalog.Item{item("a", 30.01, 59.85), item("b", 30.02, 59.85)}}, nil)
	client.On("SearchItems", mock.Anything, eastTile(1)).Return(&catalog.Page{}, nil)

	sink := &recordingSink{}
	st := &fakeStore{ids: []string{"a"}}
	h := newTestHarvester(t, client, st, testConfig(), WithSink(sink))

	_, err := h.Run(context.Background(), []config.QuerySpec{pharmacy})
	require.NoError(t, err, "sink failures are logged, not fatal")
	assert.Equal(t, []string{"pharmacy"}, sink.queries)
	assert.Equal(t, []int{2}, sink.counts)
	assert.Equal(t, []string{"b"}, st.storedIDs())
}
