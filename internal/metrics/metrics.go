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
			Namespace: "svcmon",
			Name:      "sweep_total",
			Help:      "Number of sweeps by result (completed, locked, empty).",
		}, []string{"result"},
	)
	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "svcmon",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a complete sweep over all services.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
	outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svcmon",
			Subsystem: "service",
			Name:      "outcomes_total",
			Help:      "Supervision outcomes per process.",
		}, []string{"process", "outcome"},
	)
	restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svcmon",
			Subsystem: "service",
			Name:      "restarts_total",
			Help:      "Service manager restart invocations by result.",
		}, []string{"service", "result"},
	)
	kills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svcmon",
			Subsystem: "service",
			Name:      "kills_total",
			Help:      "PIDs forcibly killed before a restart.",
		}, []string{"service"},
	)
	suppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svcmon",
			Subsystem: "cooldown",
			Name:      "suppressed_total",
			Help:      "Times a process was skipped because it is inside its cooldown window.",
		}, []string{"process"},
	)
	suppressedNow = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "svcmon",
			Subsystem: "cooldown",
			Name:      "suppressed_processes",
			Help:      "Processes present in the cooldown record after the last sweep.",
		},
	)
	alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svcmon",
			Name:      "alerts_total",
			Help:      "Alerts raised by severity.",
		}, []string{"severity"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{sweeps, sweepDuration, outcomes, restarts, kills, suppressed, suppressedNow, alerts}
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

// Recording helpers below no-op until Register has succeeded.

func IncSweep(result string) {
	if regOK.Load() {
		sweeps.WithLabelValues(result).Inc()
	}
}

func ObserveSweepDuration(seconds float64) {
	if regOK.Load() {
		sweepDuration.Observe(seconds)
	}
}

func IncOutcome(process, outcome string) {
	if regOK.Load() {
		outcomes.WithLabelValues(process, outcome).Inc()
	}
}

func IncRestart(service string, ok bool) {
	if regOK.Load() {
		result := "failed"
		if ok {
			result = "ok"
		}
		restarts.WithLabelValues(service, result).Inc()
	}
}

func IncKill(service string) {
	if regOK.Load() {
		kills.WithLabelValues(service).Inc()
	}
}

func IncSuppressed(process string) {
	if regOK.Load() {
		suppressed.WithLabelValues(process).Inc()
	}
}

func SetSuppressedProcesses(n int) {
	if regOK.Load() {
		suppressedNow.Set(float64(n))
	}
}

func IncAlert(severity string) {
	if regOK.Load() {
		alerts.WithLabelValues(severity).Inc()
	}
}
