// Package metrics exposes Prometheus collectors for GA runs. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Evaluation outcome labels.
const (
	OutcomeFeasible   = "feasible"
	OutcomeInfeasible = "infeasible"
	OutcomeFailure    = "failure"
	OutcomeTimeout    = "timeout"
	OutcomeCancelled  = "cancelled"
)

// Metrics groups the optimizer's collectors.
type Metrics struct {
	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	Generations        prometheus.Counter
	BestFitness        prometheus.Gauge
	ActiveRuns         prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gaopt",
			Name:      "evaluations_total",
			Help:      "Objective evaluations by outcome.",
		}, []string{"outcome"}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gaopt",
			Name:      "evaluation_duration_seconds",
			Help:      "Wall-clock time of single objective evaluations.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
		}),
		Generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gaopt",
			Name:      "generations_total",
			Help:      "Generations fully evaluated across all runs.",
		}),
		BestFitness: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gaopt",
			Name:      "best_fitness",
			Help:      "Best fitness of the most recently completed generation.",
		}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gaopt",
			Name:      "active_runs",
			Help:      "Optimization runs currently in progress.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Evaluations, m.EvaluationDuration, m.Generations, m.BestFitness, m.ActiveRuns} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveEvaluation records one evaluation.
func (m *Metrics) ObserveEvaluation(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(outcome).Inc()
	m.EvaluationDuration.Observe(d.Seconds())
}

// ObserveGeneration records a completed generation and its best fitness.
func (m *Metrics) ObserveGeneration(best float64) {
	if m == nil {
		return
	}
	m.Generations.Inc()
	m.BestFitness.Set(best)
}

// RunStarted increments the active run gauge; the returned func decrements it.
func (m *Metrics) RunStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveRuns.Inc()
	return m.ActiveRuns.Dec
}
