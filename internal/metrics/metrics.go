// Package metrics exposes Prometheus instrumentation for the monitor and
// healer loops.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	sweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shol",
			Name:      "sweeps_total",
			Help:      "Sweeps started per loop.",
		}, []string{"loop"},
	)
	sweepErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shol",
			Name:      "sweep_errors_total",
			Help:      "Sweeps aborted by a source failure, per loop.",
		}, []string{"loop"},
	)
	trackedProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shol",
			Subsystem: "history",
			Name:      "tracked_processes",
			Help:      "Processes with a history window.",
		},
	)
	issuesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shol",
			Subsystem: "detector",
			Name:      "issues_total",
			Help:      "Issues detected, by kind.",
		}, []string{"kind"},
	)
	healOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shol",
			Subsystem: "healer",
			Name:      "outcomes_total",
			Help:      "Healing invocations, by outcome.",
		}, []string{"outcome"},
	)
	restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shol",
			Subsystem: "healer",
			Name:      "restarts_total",
			Help:      "Relaunch attempts, by result.",
		}, []string{"result"},
	)
	optimizationScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "shol",
			Subsystem: "ledger",
			Name:      "optimization_score",
			Help:      "Weighted resource gain recorded per healing action.",
			Buckets:   []float64{0, 1, 2.5, 5, 10, 20, 40, 80},
		},
	)
	healthScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shol",
			Subsystem: "system",
			Name:      "health_score",
			Help:      "System health score, 100 = idle.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{sweeps, sweepErrors, trackedProcesses, issuesDetected, healOutcomes, restarts, optimizationScore, healthScore}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register has succeeded.

func IncSweep(loop string) {
	if regOK.Load() {
		sweeps.WithLabelValues(loop).Inc()
	}
}

func IncSweepError(loop string) {
	if regOK.Load() {
		sweepErrors.WithLabelValues(loop).Inc()
	}
}

func SetTracked(n int) {
	if regOK.Load() {
		trackedProcesses.Set(float64(n))
	}
}

func IncIssue(kind string) {
	if regOK.Load() {
		issuesDetected.WithLabelValues(kind).Inc()
	}
}

func IncOutcome(outcome string) {
	if regOK.Load() {
		healOutcomes.WithLabelValues(outcome).Inc()
	}
}

func IncRestart(result string) {
	if regOK.Load() {
		restarts.WithLabelValues(result).Inc()
	}
}

func ObserveScore(score float64) {
	if regOK.Load() {
		optimizationScore.Observe(score)
	}
}

func SetHealth(score float64) {
	if regOK.Load() {
		healthScore.Set(score)
	}
}
