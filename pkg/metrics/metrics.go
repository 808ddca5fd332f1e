package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the fleetcore Prometheus collectors. One instance is
// created per process and shared by the scheduler, assignment engine
// and API server.
type Metrics struct {
	registry *prometheus.Registry

	AssignmentsTotal   *prometheus.CounterVec // outcome: assigned | no_capable_robot
	AssignmentDuration prometheus.Histogram
	AffinityDecisions  *prometheus.CounterVec // level, outcome: selected | requeue | failed
	StatesActive       prometheus.Gauge
	SessionsActive     prometheus.Gauge

	ScheduleFires    *prometheus.CounterVec // result: success | failure
	GateSkips        *prometheus.CounterVec // gate: status | rate_limit | business_hours | condition | dependency
	SchedulesByState *prometheus.GaugeVec   // status
	RunDuration      prometheus.Histogram
	CatchUpRuns      prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		AssignmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetcore_assignments_total",
			Help: "Job assignment decisions by outcome",
		}, []string{"outcome"}),
		AssignmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetcore_assignment_duration_seconds",
			Help:    "Time spent scoring and selecting a robot",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		AffinityDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetcore_affinity_decisions_total",
			Help: "Affinity decisions by level and outcome",
		}, []string{"level", "outcome"}),
		StatesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcore_robot_states_active",
			Help: "Currently registered, unexpired robot states",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleetcore_sessions_active",
			Help: "Currently active workflow sessions",
		}),

		ScheduleFires: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetcore_schedule_fires_total",
			Help: "Trigger invocations by result",
		}, []string{"result"}),
		GateSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetcore_gate_skips_total",
			Help: "Occurrences skipped at a gate, by gate",
		}, []string{"gate"}),
		SchedulesByState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetcore_schedules",
			Help: "Registered schedules by status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetcore_run_duration_seconds",
			Help:    "Trigger callback duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		CatchUpRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "fleetcore_catchup_runs_total",
			Help: "Missed occurrences replayed by catch-up",
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
