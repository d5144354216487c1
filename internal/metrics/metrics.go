// Package metrics counts evaluation outcomes on a private Prometheus registry
// and can dump them in the node-exporter textfile format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for LLM attempts.
const (
	OutcomeSuccess      = "success"
	OutcomeError        = "error"
	OutcomeInvalidReply = "invalid_reply"
)

// Source labels for evaluations.
const (
	SourceService  = "service"
	SourceFallback = "fallback"
)

// Recorder holds the simulation's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	attempts    *prometheus.CounterVec
	evaluations *prometheus.CounterVec
	adjustments *prometheus.CounterVec
	scores      prometheus.Histogram
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadsim_llm_attempts_total",
				Help: "Total number of calls to the text-generation service",
			},
			[]string{"outcome"},
		),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadsim_evaluations_total",
				Help: "Total number of finished evaluations",
			},
			[]string{"source"},
		),
		adjustments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadsim_score_adjustments_total",
				Help: "Scores changed by reconciliation",
			},
			[]string{"direction"},
		),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadsim_evaluation_score",
			Help:    "Final evaluation scores",
			Buckets: []float64{1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5},
		}),
	}
	r.registry.MustRegister(r.attempts, r.evaluations, r.adjustments, r.scores)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Attempt counts one call to the generation service.
func (r *Recorder) Attempt(outcome string) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(outcome).Inc()
}

// Evaluation counts a finished evaluation and observes its score, if any.
func (r *Recorder) Evaluation(source string, score *float64) {
	if r == nil {
		return
	}
	r.evaluations.WithLabelValues(source).Inc()
	if score != nil {
		r.scores.Observe(*score)
	}
}

// Adjustment records how reconciliation moved a score.
func (r *Recorder) Adjustment(before, after float64) {
	if r == nil {
		return
	}
	switch {
	case after < before:
		r.adjustments.WithLabelValues("down").Inc()
	case after > before:
		r.adjustments.WithLabelValues("up").Inc()
	}
}

// WriteTextfile writes all metrics to path for the textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
