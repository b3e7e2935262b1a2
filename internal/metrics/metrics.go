// ============================================================================
// TheSquid Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose dispatch engine metrics for Prometheus
//
// Metric Categories:
//
//   1. Task Counters - Cumulative, monotonically increasing:
//      - squid_tasks_enqueued_total: Tasks appended to the pending queue
//      - squid_tasks_dispatched_total: Tasks accepted by a squidlet
//      - squid_tasks_completed_total: Results received
//      - squid_tasks_timed_out_total: Deadline expiries
//      - squid_dispatch_failures_total: Connect/header/accept/payload failures
//
//   2. Performance Metrics (Histogram):
//      - squid_task_latency_seconds: Acceptance-to-result latency
//
//   3. Status Metrics (Gauge) - Refreshed once per step:
//      - squid_tasks_pending / squid_tasks_running / squid_workers_available
//
// Prometheus Query Examples:
//
//   # Tasks per minute
//   rate(squid_tasks_completed_total[1m])
//
//   # Retry pressure
//   rate(squid_tasks_timed_out_total[5m]) + rate(squid_dispatch_failures_total[5m])
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for the dispatch engine
type Collector struct {
	tasksEnqueued    prometheus.Counter
	tasksDispatched  prometheus.Counter
	tasksCompleted   prometheus.Counter
	tasksTimedOut    prometheus.Counter
	dispatchFailures prometheus.Counter

	taskLatency prometheus.Histogram

	tasksPending     prometheus.Gauge
	tasksRunning     prometheus.Gauge
	workersAvailable prometheus.Gauge
}

// NewCollector creates a new metrics collector and registers its metrics on
// the given registry. Passing nil uses the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		tasksEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "squid_tasks_enqueued_total",
			Help: "Total number of tasks appended to the pending queue",
		}),
		tasksDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "squid_tasks_dispatched_total",
			Help: "Total number of tasks accepted by a squidlet",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "squid_tasks_completed_total",
			Help: "Total number of task results received",
		}),
		tasksTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "squid_tasks_timed_out_total",
			Help: "Total number of running tasks that crossed their deadline",
		}),
		dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "squid_dispatch_failures_total",
			Help: "Total number of failed dispatch attempts",
		}),
		taskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "squid_task_latency_seconds",
			Help:    "Task latency from acceptance to result in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		tasksPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "squid_tasks_pending",
			Help: "Current number of pending tasks",
		}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "squid_tasks_running",
			Help: "Current number of running tasks",
		}),
		workersAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "squid_workers_available",
			Help: "Current number of idle workers",
		}),
	}

	reg.MustRegister(
		c.tasksEnqueued,
		c.tasksDispatched,
		c.tasksCompleted,
		c.tasksTimedOut,
		c.dispatchFailures,
		c.taskLatency,
		c.tasksPending,
		c.tasksRunning,
		c.workersAvailable,
	)

	return c
}

// RecordEnqueue records a task appended to the pending queue
func (c *Collector) RecordEnqueue() {
	c.tasksEnqueued.Inc()
}

// RecordDispatch records a task accepted by a squidlet
func (c *Collector) RecordDispatch() {
	c.tasksDispatched.Inc()
}

// RecordCompleted records a received result with its latency
func (c *Collector) RecordCompleted(latencySeconds float64) {
	c.tasksCompleted.Inc()
	c.taskLatency.Observe(latencySeconds)
}

// RecordTimeout records a deadline expiry
func (c *Collector) RecordTimeout() {
	c.tasksTimedOut.Inc()
}

// RecordDispatchFailure records a failed dispatch attempt
func (c *Collector) RecordDispatchFailure() {
	c.dispatchFailures.Inc()
}

// UpdateQueueStats refreshes the status gauges; called once per step
func (c *Collector) UpdateQueueStats(pending, running, available int) {
	c.tasksPending.Set(float64(pending))
	c.tasksRunning.Set(float64(running))
	c.workersAvailable.Set(float64(available))
}

// StartServer starts the Prometheus metrics HTTP server
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
