// Package metrics holds the Prometheus collectors for ledger reconciliation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconciliation kinds.
const (
	KindAttendance    = "attendance"
	KindSessionDelete = "session_delete"
	KindWebhook       = "payment_webhook"
	KindExpiry        = "payment_expiry"
)

// Reconciliation results.
const (
	ResultApplied = "applied"
	ResultNoOp    = "noop"
	ResultError   = "error"
)

var (
	// ReconciliationsTotal counts reconciler invocations by kind and result.
	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_reconciliations_total",
		Help: "Total number of reconciliations by kind and result",
	}, []string{"kind", "result"})

	// BalanceAdjustmentsTotal counts committed balance adjustments by journal type.
	BalanceAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_balance_adjustments_total",
		Help: "Total number of committed balance adjustments",
	}, []string{"type"})

	// TransactionDuration measures reconciliation transaction latency.
	TransactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_transaction_duration_seconds",
		Help:    "Reconciliation transaction latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// NotificationsTotal counts notices by kind and delivery result.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_notifications_total",
		Help: "Total number of notices by kind and result",
	}, []string{"kind", "result"})

	// NotificationQueueDepth is the number of notices waiting for a worker.
	NotificationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_notification_queue_depth",
		Help: "Current number of queued notices",
	})

	// EmailBreakerOpen is 1 while the email circuit breaker rejects calls.
	EmailBreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_email_breaker_open",
		Help: "Whether the email circuit breaker is open",
	})

	// LedgerDriftChildren is the number of children found drifting by the last audit.
	LedgerDriftChildren = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_drift_children",
		Help: "Children whose balance disagrees with their journal at the last audit",
	})

	// JobRunsTotal counts maintenance job runs by job and result.
	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_job_runs_total",
		Help: "Total number of maintenance job runs",
	}, []string{"job", "result"})
)

// Notification results.
const (
	NoticeSent    = "sent"
	NoticeFailed  = "failed"
	NoticeDropped = "dropped"
)
