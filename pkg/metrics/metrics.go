package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Disbursement executions, labelled by outcome (executed, already_disbursed, failed).
	DisbursementExecuteCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disbursement_execute_count",
			Help: "Total number of disbursement execute attempts",
		},
		[]string{"outcome"},
	)

	// Reports auto-approved by the sweep.
	SweepAutoApprovedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_auto_approved_count",
			Help: "Total number of reports auto-approved by the SLA sweep",
		},
	)

	// One full sweep cycle, scan plus approvals (seconds).
	SweepCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_cycle_duration_seconds",
			Help:    "Duration of one auto-approval sweep cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
	)

	// Ledger append transaction duration (seconds).
	LedgerAppendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_append_duration_seconds",
			Help:    "Duration of atomic ledger append transactions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"}, // operation: execute, payout
	)

	// HTTP request latency (seconds).
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// DB query latency (seconds).
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)
)

// RecordDisbursementExecute counts an execute attempt by outcome.
func RecordDisbursementExecute(outcome string) {
	DisbursementExecuteCount.WithLabelValues(outcome).Inc()
}

// RecordLedgerAppend records the duration of an atomic ledger write.
func RecordLedgerAppend(operation string, duration time.Duration) {
	LedgerAppendDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration records HTTP handler latency.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordDBQueryDuration records repository query latency.
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
