// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts API requests by path, method and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// JobResultsTotal counts completed passes (one per loop cycle) by outcome.
	JobResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periodic_job_results_total",
			Help: "Total number of job passes completed, by status.",
		},
		[]string{"job_name", "status"},
	)

	// BatchesTotal counts executed batches; status is committed or failed.
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periodic_batches_total",
			Help: "Total number of batches executed.",
		},
		[]string{"job_name", "status"},
	)

	// RowsTotal counts rows by final outcome.
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periodic_rows_total",
			Help: "Total number of rows committed or failed.",
		},
		[]string{"job_name", "status"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periodic_batch_retries_total",
			Help: "Total number of batch retry attempts.",
		},
		[]string{"job_name"},
	)

	// PoolInFlight is the number of batches holding a slot of a shared pool.
	PoolInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "periodic_pool_in_flight",
			Help: "Batches currently holding a worker slot of the pool.",
		},
		[]string{"pool"},
	)

	// IsLeader is 1 while this node fires scheduled jobs.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)
