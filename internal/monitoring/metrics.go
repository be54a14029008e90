// Package monitoring collects harvest and store metrics in Prometheus form.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "poi"

// Metrics owns a private registry so a run can be written to a textfile
// without the default process collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	requests      prometheus.Counter
	outcomes      *prometheus.CounterVec
	items         *prometheus.CounterVec
	queryDuration prometheus.Histogram

	storeRows     *prometheus.GaugeVec
	runs          *prometheus.GaugeVec
	lastCollected prometheus.Gauge
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "requests_total",
			Help:      "Catalog page requests issued.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "page_loop_outcomes_total",
			Help:      "Page loop terminations by outcome.",
		}, []string{"outcome"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "items_total",
			Help:      "Harvested items by pipeline stage.",
		}, []string{"stage"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "query_duration_seconds",
			Help:      "Wall time spent on one query across all tiles.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		storeRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rows",
			Help:      "Stored POIs by enrichment state.",
		}, []string{"state"}),
		runs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "harvest_runs",
			Help:      "Recorded harvest runs by status.",
		}, []string{"status"}),
		lastCollected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "last_collected_timestamp_seconds",
			Help:      "Collection time of the newest stored POI.",
		}),
	}
	m.registry.MustRegister(m.requests, m.outcomes, m.items, m.queryDuration, m.storeRows, m.runs, m.lastCollected)
	return m
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest counts one catalog request.
func (m *Metrics) RecordRequest() {
	if m == nil {
		return
	}
	m.requests.Inc()
}

// RecordOutcome counts one page loop termination.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

// RecordItems adds n items to a stage: fetched, outside, duplicate or stored.
func (m *Metrics) RecordItems(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.items.WithLabelValues(stage).Add(float64(n))
}

// ObserveQuery records the duration of one query.
func (m *Metrics) ObserveQuery(d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.Observe(d.Seconds())
}

// RecordSnapshot sets the store gauges.
func (m *Metrics) RecordSnapshot(s *Snapshot) {
	if m == nil || s == nil {
		return
	}
	m.storeRows.WithLabelValues("total").Set(float64(s.POITotal))
	m.storeRows.WithLabelValues("categorized").Set(float64(s.Categorized))
	m.storeRows.WithLabelValues("clustered").Set(float64(s.Clustered))
	m.storeRows.WithLabelValues("noise").Set(float64(s.Noise))

	m.runs.WithLabelValues("complete").Set(float64(s.RunsComplete))
	m.runs.WithLabelValues("failed").Set(float64(s.RunsFailed))
	m.runs.WithLabelValues("canceled").Set(float64(s.RunsCanceled))
	m.runs.WithLabelValues("running").Set(float64(s.RunsRunning))

	if s.LastCollected != nil {
		m.lastCollected.Set(float64(s.LastCollected.Unix()))
	}
}

// WriteTextfile writes the registry in text exposition format for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return eris.Wrapf(prometheus.WriteToTextfile(path, m.registry), "monitoring: write textfile %s", path)
}
