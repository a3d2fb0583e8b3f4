// Package metrics provides Prometheus metrics for ingestion and retrieval.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors of the knowledge store.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Ingestion metrics
	IngestItemsTotal  *prometheus.CounterVec
	IngestChunksTotal prometheus.Counter
	IngestRunDuration prometheus.Histogram

	// Retrieval metrics
	SearchRequestsTotal *prometheus.CounterVec
	SearchDuration      *prometheus.HistogramVec
	SearchResults       *prometheus.HistogramVec
}

// NewMetrics creates all collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.IngestItemsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policykb_ingest_items_total",
			Help: "Snapshot folders processed, by outcome",
		},
		[]string{"status"},
	)

	m.IngestChunksTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "policykb_ingest_chunks_total",
			Help: "Chunks written by ingestion",
		},
	)

	m.IngestRunDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "policykb_ingest_run_duration_seconds",
			Help:    "Duration of ingestion runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	m.SearchRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policykb_search_requests_total",
			Help: "Retrieval requests, by kind and status",
		},
		[]string{"kind", "status"},
	)

	m.SearchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policykb_search_duration_seconds",
			Help:    "Duration of retrieval requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	m.SearchResults = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "policykb_search_results",
			Help:    "Number of results returned per retrieval request",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
		[]string{"kind"},
	)

	return m
}

// RecordIngestItem counts one processed snapshot folder.
func (m *Metrics) RecordIngestItem(status string, chunks int) {
	if m == nil {
		return
	}
	m.IngestItemsTotal.WithLabelValues(status).Inc()
	if chunks > 0 {
		m.IngestChunksTotal.Add(float64(chunks))
	}
}

// RecordIngestRun observes the duration of a finished run.
func (m *Metrics) RecordIngestRun(duration time.Duration) {
	if m == nil {
		return
	}
	m.IngestRunDuration.Observe(duration.Seconds())
}

// RecordSearch records the outcome of one retrieval request.
func (m *Metrics) RecordSearch(kind string, err error, duration time.Duration, results int) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SearchRequestsTotal.WithLabelValues(kind, status).Inc()
	m.SearchDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if err == nil {
		m.SearchResults.WithLabelValues(kind).Observe(float64(results))
	}
}
