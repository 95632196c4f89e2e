// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics collects per-run counters in a private Prometheus
// registry. paperwatch runs as a batch job, so instead of serving /metrics
// the registry is written in text format for node_exporter's textfile
// collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run holds the metrics of one pipeline run.
type Run struct {
	reg *prometheus.Registry

	// Candidates counts candidates per pipeline stage.
	Candidates *prometheus.GaugeVec

	// SourceErrors counts failed sources.
	SourceErrors *prometheus.CounterVec

	// Enriched counts fields filled by metadata enrichment.
	Enriched *prometheus.CounterVec

	// EmbeddingFailures counts skipped items and candidates per phase.
	EmbeddingFailures *prometheus.CounterVec

	// EmbeddingCache counts candidate cache lookups by result.
	EmbeddingCache *prometheus.CounterVec

	ProfileItems    prometheus.Gauge
	Recommendations prometheus.Gauge
	PreprintDemoted prometheus.Gauge
	Duration        prometheus.Gauge
	LastSuccess     prometheus.Gauge
}

// NewRun registers a fresh set of run metrics.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Run{
		reg: reg,
		Candidates: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "paperwatch_candidates",
			Help: "Candidates remaining after each pipeline stage",
		}, []string{"stage"}),
		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperwatch_source_errors_total",
			Help: "Candidate sources that failed during the run",
		}, []string{"source"}),
		Enriched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperwatch_enriched_fields_total",
			Help: "Candidate fields filled by metadata enrichment",
		}, []string{"field"}),
		EmbeddingFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperwatch_embedding_failures_total",
			Help: "Embedding provider failures that skipped an item or candidate",
		}, []string{"phase"}),
		EmbeddingCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperwatch_embedding_cache_lookups_total",
			Help: "Candidate embedding cache lookups",
		}, []string{"result"}),
		ProfileItems: f.NewGauge(prometheus.GaugeOpts{
			Name: "paperwatch_profile_items",
			Help: "Library items aggregated into the profile",
		}),
		Recommendations: f.NewGauge(prometheus.GaugeOpts{
			Name: "paperwatch_recommendations",
			Help: "Recommendations written by the run",
		}),
		PreprintDemoted: f.NewGauge(prometheus.GaugeOpts{
			Name: "paperwatch_preprints_demoted",
			Help: "Preprints pushed below the cutoff by the ratio cap",
		}),
		Duration: f.NewGauge(prometheus.GaugeOpts{
			Name: "paperwatch_run_duration_seconds",
			Help: "Wall time of the run",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "paperwatch_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
	}
}

// WriteFile writes the metrics atomically in Prometheus text format.
func (r *Run) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
