// Package metrics provides Prometheus metrics for the triage engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	TriagesTotal      *prometheus.CounterVec
	TriagesRejected   prometheus.Counter
	StageDuration     *prometheus.HistogramVec
	PipelineDuration  prometheus.Histogram
	BackendOutcomes   *prometheus.CounterVec
	CircuitState      *prometheus.GaugeVec
	EscalationsTotal  prometheus.Counter
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triages_total",
			Help: "Total triage runs by risk tier",
		}, []string{"risk_tier"}),
		TriagesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triages_rejected_total",
			Help: "Total intakes rejected at validation",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_stage_duration_seconds",
			Help:    "Per-stage processing duration",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		}, []string{"stage"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_pipeline_duration_seconds",
			Help:    "End-to-end pipeline duration",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		}),
		BackendOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inference_backend_outcomes_total",
			Help: "External backend call outcomes (ok, error, skipped)",
		}, []string{"backend", "outcome"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inference_circuit_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		EscalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triage_escalations_total",
			Help: "Total triage runs requiring escalation",
		}),
	}

	prometheus.MustRegister(
		m.TriagesTotal,
		m.TriagesRejected,
		m.StageDuration,
		m.PipelineDuration,
		m.BackendOutcomes,
		m.CircuitState,
		m.EscalationsTotal,
	)

	return m
}

// TriageCompleted records one finished pipeline run.
func (m *Metrics) TriageCompleted(tier string, elapsed time.Duration) {
	m.TriagesTotal.WithLabelValues(tier).Inc()
	m.PipelineDuration.Observe(elapsed.Seconds())
	if tier == "urgent" || tier == "critical" {
		m.EscalationsTotal.Inc()
	}
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
