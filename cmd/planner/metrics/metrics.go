// Package metrics provides Prometheus instrumentation for the planner.
//
// Metrics exposed:
//   - shiftcast_source_fetch_seconds: Histogram of forecast fetch duration
//   - shiftcast_staffing_compute_seconds: Histogram of Erlang C staffing duration
//   - shiftcast_coverage_solve_seconds: Histogram of per-day coverage solve duration
//   - shiftcast_peak_required_agents: Gauge of peak net agents over the horizon
//   - shiftcast_scheduled_shifts: Gauge of shift instances in the latest plan
//   - shiftcast_unreachable_intervals: Gauge of intervals that hit the search bound
//   - shiftcast_plan_age_seconds: Gauge of the age of the latest stored plan
//   - shiftcast_errors_total: Counter of errors by component and reason
//
// All metrics carry the site label.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the planner.
type Metrics struct {
	SourceFetchSeconds     prometheus.Histogram
	StaffingComputeSeconds prometheus.Histogram
	CoverageSolveSeconds   *prometheus.HistogramVec
	PeakRequiredAgents     prometheus.Gauge
	ScheduledShifts        prometheus.Gauge
	UnreachableIntervals   prometheus.Gauge
	PlanAgeSeconds         prometheus.Gauge
	ErrorsTotal            *prometheus.CounterVec
}

// New creates the metrics and registers them with the default registry.
func New(site, source string) *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, site, source)
}

// NewWithRegistry registers the metrics with reg.
func NewWithRegistry(reg prometheus.Registerer, site, source string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"site": site}

	return &Metrics{
		SourceFetchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "shiftcast_source_fetch_seconds",
			Help: "Time spent fetching the volume forecast",
			ConstLabels: prometheus.Labels{
				"site":   site,
				"source": source,
			},
			Buckets: prometheus.DefBuckets,
		}),

		StaffingComputeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "shiftcast_staffing_compute_seconds",
			Help:        "Time spent computing per-interval staffing requirements",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		// Solves run up to the solver timeout, so the buckets reach further.
		CoverageSolveSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "shiftcast_coverage_solve_seconds",
			Help:        "Time spent solving the shift coverage program for one day",
			ConstLabels: labels,
			Buckets:     []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"status"}),

		PeakRequiredAgents: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "shiftcast_peak_required_agents",
			Help:        "Peak net agents required over the planning horizon",
			ConstLabels: labels,
		}),

		ScheduledShifts: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "shiftcast_scheduled_shifts",
			Help:        "Shift instances scheduled in the latest plan",
			ConstLabels: labels,
		}),

		UnreachableIntervals: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "shiftcast_unreachable_intervals",
			Help:        "Intervals whose service target was not reached within the search bound",
			ConstLabels: labels,
		}),

		PlanAgeSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "shiftcast_plan_age_seconds",
			Help:        "Age of the latest stored plan in seconds",
			ConstLabels: labels,
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "shiftcast_errors_total",
			Help:        "Total number of errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

// RecordFetch records the time spent fetching the forecast.
func (m *Metrics) RecordFetch(seconds float64) {
	m.SourceFetchSeconds.Observe(seconds)
}

// RecordStaffing records the time spent computing requirements.
func (m *Metrics) RecordStaffing(seconds float64) {
	m.StaffingComputeSeconds.Observe(seconds)
}

// RecordSolve records one day's solve time under its outcome status.
func (m *Metrics) RecordSolve(status string, seconds float64) {
	m.CoverageSolveSeconds.WithLabelValues(status).Observe(seconds)
}

// SetPeakRequired sets the peak net requirement.
func (m *Metrics) SetPeakRequired(agents int) {
	m.PeakRequiredAgents.Set(float64(agents))
}

// SetScheduledShifts sets the number of scheduled shift instances.
func (m *Metrics) SetScheduledShifts(n int) {
	m.ScheduledShifts.Set(float64(n))
}

// SetUnreachable sets the number of unreachable intervals.
func (m *Metrics) SetUnreachable(n int) {
	m.UnreachableIntervals.Set(float64(n))
}

// SetPlanAge sets the age of the latest plan.
func (m *Metrics) SetPlanAge(seconds float64) {
	m.PlanAgeSeconds.Set(seconds)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
