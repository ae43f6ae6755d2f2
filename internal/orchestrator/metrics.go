// Prometheus metrics for the dispatch loop.
package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchesTotal counts dispatch calls by outcome.
	// Labels: result (completed, failed, pending_review, queued, rejected)
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskd",
			Subsystem: "orchestrator",
			Name:      "dispatches_total",
			Help:      "Total number of task dispatches by result",
		},
		[]string{"result"},
	)

	// ActiveWorkers tracks currently executing workers.
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskd",
			Subsystem: "orchestrator",
			Name:      "active_workers",
			Help:      "Number of worker executions currently in flight",
		},
	)

	// TaskDuration observes wall time of worker executions.
	TaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taskd",
			Subsystem: "orchestrator",
			Name:      "task_duration_seconds",
			Help:      "Duration of worker task executions in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
