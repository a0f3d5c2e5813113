package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnnouncementsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupage_announcements_expired_total",
			Help: "Total number of announcements expired by the sweeper",
		},
		[]string{"reason"},
	)

	SweepErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupage_sweep_errors_total",
			Help: "Total number of per-record errors during sweeps",
		},
	)

	RecordsBackfilled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupage_records_backfilled_total",
			Help: "Total number of records whose expires_at was backfilled",
		},
	)

	BackfillSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupage_backfill_skipped_total",
			Help: "Total number of records skipped by the backfill for lack of a date basis",
		},
	)

	AuditAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupage_audit_anomalies_total",
			Help: "Total number of lifecycle anomalies reported by the auditor",
		},
		[]string{"kind"},
	)

	TransitionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupage_transitions_applied_total",
			Help: "Total number of lifecycle transitions applied",
		},
		[]string{"transition"},
	)

	GuardFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupage_guard_failures_total",
			Help: "Total number of rejected transition attempts",
		},
		[]string{"transition"},
	)

	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupage_store_request_duration_seconds",
			Help:    "Duration of record store HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupage_store_request_errors_total",
			Help: "Total number of failed record store requests",
		},
		[]string{"operation"},
	)
)
