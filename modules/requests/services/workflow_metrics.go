package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "requests",
		Subsystem: "workflow",
		Name:      "executions_total",
		Help:      "Total request executions broken down by request type and outcome.",
	}, []string{"type", "outcome"})

	lockContention = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "requests",
		Subsystem: "workflow",
		Name:      "lock_contention_total",
		Help:      "Executions refused because the execution lock was held.",
	}, []string{"operation"})

	batchRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "requests",
		Subsystem: "workflow",
		Name:      "batch_runs_total",
		Help:      "Total pending-batch processing runs.",
	})
)

func recordExecution(requestType, outcome string) {
	requestExecutions.WithLabelValues(requestType, outcome).Inc()
}

func recordLockContention(operation string) {
	lockContention.WithLabelValues(operation).Inc()
}
