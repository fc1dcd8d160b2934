package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the reactor step
// lifecycle, surfaced as counters and histograms.
type Metrics struct {
	RunsTotal           *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
	RunRetries          *prometheus.CounterVec
	CompensationsTotal  *prometheus.CounterVec
	UndosTotal          *prometheus.CounterVec
	ReactorsInFlight    prometheus.Gauge
	ConcurrencyPoolUsed *prometheus.GaugeVec
}

// NewMetrics builds and registers the step-lifecycle collectors against
// reg (typically a telemetry.Telemetry's Registerer, or
// prometheus.DefaultRegisterer for a standalone process).
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_runs_total",
				Help:      "Total number of step Run invocations, by outcome",
			},
			[]string{"step", "outcome"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_run_duration_seconds",
				Help:      "Step Run duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"step"},
		),
		RunRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_retries_total",
				Help:      "Total number of step retry attempts",
			},
			[]string{"step"},
		),
		CompensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_compensations_total",
				Help:      "Total number of step Compensate invocations, by outcome",
			},
			[]string{"step", "outcome"},
		),
		UndosTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_undos_total",
				Help:      "Total number of step Undo invocations during rollback, by outcome",
			},
			[]string{"step", "outcome"},
		),
		ReactorsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reactors_in_flight",
				Help:      "Number of reactor executions currently running",
			},
		),
		ConcurrencyPoolUsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "concurrency_pool_slots_used",
				Help:      "Slots currently checked out of a concurrency pool",
			},
			[]string{"pool"},
		),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunRetries,
		m.CompensationsTotal,
		m.UndosTotal,
		m.ReactorsInFlight,
		m.ConcurrencyPoolUsed,
	)

	return m
}

// Handler returns the default Prometheus HTTP handler, for a standalone
// process that did not register against its own telemetry.Telemetry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
