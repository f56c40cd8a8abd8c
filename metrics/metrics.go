package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payouts",
			Name:      "settlement_runs_total",
			Help:      "Settlement batch runs by outcome",
		},
		[]string{"outcome"},
	)

	SettlementRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "payouts",
			Name:      "settlement_run_duration_seconds",
			Help:      "Duration of settlement batch runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	PayoutsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payouts",
			Name:      "generated_total",
			Help:      "Payout receipts created or extended, by resulting status",
		},
		[]string{"status"},
	)

	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payouts",
			Name:      "transfers_total",
			Help:      "Bank transfer attempts by outcome",
		},
		[]string{"outcome"},
	)

	TransferDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "payouts",
			Name:      "transfer_duration_seconds",
			Help:      "Duration of bank transfer calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	LedgerConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "payouts",
			Name:      "ledger_conflicts_total",
			Help:      "Optimistic concurrency conflicts hit by the payout ledger",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payouts",
			Name:      "notifications_total",
			Help:      "Payout notification emails by outcome",
		},
		[]string{"outcome"},
	)

	AuditSinkFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payouts",
			Name:      "audit_sink_failures_total",
			Help:      "Audit events a sink failed to accept",
		},
		[]string{"sink"},
	)
)
