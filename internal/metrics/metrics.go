// Package metrics provides Prometheus metrics for retrieval and ingestion.
//
// All methods are safe on a nil *Metrics, so components can run without a
// registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeHit     = "hit"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Metrics holds the collectors.
type Metrics struct {
	RetrievalTierTotal *prometheus.CounterVec
	RetrievalDuration  prometheus.Histogram
	IngestFilesTotal   *prometheus.CounterVec
	IngestChunksTotal  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg creates
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RetrievalTierTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discoveryrag_retrieval_tier_total",
				Help: "Retrieval tier attempts by outcome",
			},
			[]string{"tier", "outcome"},
		),
		RetrievalDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "discoveryrag_retrieval_duration_seconds",
				Help:    "Duration of a full retrieval in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		IngestFilesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discoveryrag_ingest_files_total",
				Help: "Ingested files by outcome",
			},
			[]string{"outcome"},
		),
		IngestChunksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discoveryrag_ingest_chunks_total",
				Help: "Written chunks by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Tier records one tier attempt.
func (m *Metrics) Tier(tier, outcome string) {
	if m == nil {
		return
	}
	m.RetrievalTierTotal.WithLabelValues(tier, outcome).Inc()
}

// ObserveRetrieval records the duration of a retrieval started at start.
func (m *Metrics) ObserveRetrieval(start time.Time) {
	if m == nil {
		return
	}
	m.RetrievalDuration.Observe(time.Since(start).Seconds())
}

// File records one ingested file.
func (m *Metrics) File(outcome string) {
	if m == nil {
		return
	}
	m.IngestFilesTotal.WithLabelValues(outcome).Inc()
}

// Chunks adds n written chunks with the given outcome.
func (m *Metrics) Chunks(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.IngestChunksTotal.WithLabelValues(outcome).Add(float64(n))
}
