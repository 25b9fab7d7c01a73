// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricCommits         = "commits_total"
	MetricRollbacks       = "rollbacks_total"
	MetricConflicts       = "conflicts_total"
	MetricBatchesApplied  = "batches_applied_total"
	MetricQueueDepth      = "batch_queue_depth"
	MetricStorageErrors   = "storage_errors_total"
	MetricOpenIterations  = "open_iterations"
	MetricOpenConnections = "open_connections"
)

const metricNamespace = "rdfsail"

var metricCommits = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      MetricCommits,
		Help:      "Committed transactions by isolation level.",
	},
	[]string{
		"level",
	},
)

var metricRollbacks = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      MetricRollbacks,
		Help:      "Transactions rolled back, including aborted ones.",
	},
)

var metricConflicts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      MetricConflicts,
		Help:      "Commits aborted by conflict detection.",
	},
)

var metricBatchesApplied = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      MetricBatchesApplied,
		Help:      "Batches applied by the batch writer.",
	},
	[]string{
		"kind",
	},
)

var metricQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      MetricQueueDepth,
		Help:      "Batches waiting in the batch writer queue.",
	},
)

var metricStorageErrors = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      MetricStorageErrors,
		Help:      "Failed backend writes.",
	},
)

var metricOpenIterations = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      MetricOpenIterations,
		Help:      "Statement iterators not yet closed.",
	},
)

var metricOpenConnections = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      MetricOpenConnections,
		Help:      "Open connections.",
	},
)

func init() {
	prometheus.MustRegister(metricCommits)
	prometheus.MustRegister(metricRollbacks)
	prometheus.MustRegister(metricConflicts)
	prometheus.MustRegister(metricBatchesApplied)
	prometheus.MustRegister(metricQueueDepth)
	prometheus.MustRegister(metricStorageErrors)
	prometheus.MustRegister(metricOpenIterations)
	prometheus.MustRegister(metricOpenConnections)
}
