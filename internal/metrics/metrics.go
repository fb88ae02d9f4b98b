// Package metrics exports Prometheus metrics for the orchestrator: task
// throughput, per-stage outcomes, limiter denials, and breaker state.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all orchestrator Prometheus metrics.
type Metrics struct {
	// Task metrics
	TasksProcessed *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec

	// Pipeline stage metrics
	StageOutcomes *prometheus.CounterVec

	// Gate metrics
	LimiterDenials *prometheus.CounterVec
	BreakerState   *prometheus.GaugeVec
	BreakerTrips   *prometheus.CounterVec

	// Campaign metrics
	JobsPaused *prometheus.CounterVec
}

// New initializes and registers the orchestrator metrics.
func New() *Metrics {
	return &Metrics{
		TasksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_tasks_processed_total",
			Help: "Total queue tasks processed by type and result",
		}, []string{"type", "result"}),

		TaskDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadgen_task_duration_seconds",
			Help:    "Time to process a single queue task",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"type"}),

		StageOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_stage_outcomes_total",
			Help: "Pipeline stage results by service and outcome (success, failed, rate_limited, skipped)",
		}, []string{"service", "outcome"}),

		LimiterDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_ratelimit_denials_total",
			Help: "Requests denied by the distributed rate limiter",
		}, []string{"service"}),

		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leadgen_breaker_state",
			Help: "Circuit breaker state per service (0 closed, 1 half-open, 2 open)",
		}, []string{"service"}),

		BreakerTrips: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_breaker_trips_total",
			Help: "Times a circuit breaker opened, by service",
		}, []string{"service"}),

		JobsPaused: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "leadgen_jobs_paused_total",
			Help: "Jobs paused mid-pipeline by blocking service",
		}, []string{"service"}),
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTask records one processed task.
func (m *Metrics) RecordTask(taskType, result string, duration time.Duration) {
	m.TasksProcessed.WithLabelValues(taskType, result).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// RecordStageOutcome records one pipeline stage result.
func (m *Metrics) RecordStageOutcome(service, outcome string) {
	m.StageOutcomes.WithLabelValues(service, outcome).Inc()
}

// RecordLimiterDenial records a rate limiter denial.
func (m *Metrics) RecordLimiterDenial(service string) {
	m.LimiterDenials.WithLabelValues(service).Inc()
}

// SetBreakerState sets a breaker's state gauge.
func (m *Metrics) SetBreakerState(service string, state float64) {
	m.BreakerState.WithLabelValues(service).Set(state)
}

// RecordBreakerTrip records a breaker opening.
func (m *Metrics) RecordBreakerTrip(service string) {
	m.BreakerTrips.WithLabelValues(service).Inc()
}

// RecordJobPaused records a job paused by a blocking service.
func (m *Metrics) RecordJobPaused(service string) {
	m.JobsPaused.WithLabelValues(service).Inc()
}
