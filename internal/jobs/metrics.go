package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs and ledger selection.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	selections *prometheus.CounterVec
	violations *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records duration and outcome, returning err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// ObserveSelection counts which ledger source served a request and why.
func (m *Metrics) ObserveSelection(source, reason string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(source, reason).Inc()
}

// AddViolations counts ledger self-check failures by kind.
func (m *Metrics) AddViolations(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.violations.WithLabelValues(kind).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "royaltyops_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "royaltyops_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "royaltyops_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	selections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "royaltyops_ledger_selection_total",
		Help: "Ledger reads by selected source and selection reason.",
	}, []string{"source", "reason"})
	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "royaltyops_ledger_violations_total",
		Help: "Ledger conservation and continuity violations by kind.",
	}, []string{"kind"})
	registerer.MustRegister(runs, failures, duration, selections, violations)
	return &Metrics{runs: runs, failures: failures, duration: duration, selections: selections, violations: violations}
}
