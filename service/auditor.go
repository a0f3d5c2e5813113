package service

import (
	"context"
	"fmt"
	"time"

	"groupage/core"
	"groupage/metrics"

	"go.uber.org/zap"
)

// AnomalyKind classifies lifecycle inconsistencies found by the auditor.
type AnomalyKind string

const (
	// AnomalyDeletedWithFutureExpiry flags a deleted record whose
	// expires_at is still in the future: deletion bypassed normal flow or
	// expiration data was stale at delete time.
	AnomalyDeletedWithFutureExpiry AnomalyKind = "DELETED_WITH_FUTURE_EXPIRY"
	// AnomalyExpiredMissingTimestamp flags an expired record without
	// expired_at: a direct status write outside the sweeper's path.
	AnomalyExpiredMissingTimestamp AnomalyKind = "EXPIRED_MISSING_TIMESTAMP"
	// AnomalyPublishedButExpired flags a published record more than a day
	// past its expires_at: the sweeper did not run, failed, or expires_at
	// was computed incorrectly.
	AnomalyPublishedButExpired AnomalyKind = "PUBLISHED_BUT_EXPIRED"
	// AnomalyUnknownStatus flags a status value foreign to the lifecycle.
	AnomalyUnknownStatus AnomalyKind = "UNKNOWN_STATUS"
)

// publishedOverdueGrace is how far past expires_at a published record may
// be before the auditor flags it; one day covers the sweeper's daily cadence.
const publishedOverdueGrace = 24 * time.Hour

// Anomaly is one detected inconsistency.
type Anomaly struct {
	Kind        AnomalyKind `json:"kind" yaml:"kind"`
	RecordID    string      `json:"record_id" yaml:"record_id"`
	Reference   string      `json:"reference,omitempty" yaml:"reference,omitempty"`
	Status      string      `json:"status" yaml:"status"`
	Detail      string      `json:"detail" yaml:"detail"`
	DaysOverdue int         `json:"days_overdue,omitempty" yaml:"days_overdue,omitempty"`
}

// AuditReport is the structured result of one audit run.
type AuditReport struct {
	Scanned   int            `json:"scanned" yaml:"scanned"`
	ByStatus  map[string]int `json:"by_status" yaml:"by_status"`
	Anomalies []Anomaly      `json:"anomalies" yaml:"anomalies"`
}

// AuditorService scans every record and reports lifecycle anomalies. It is
// strictly read-only: remediation is always a separate, explicit sweep or a
// manual correction.
type AuditorService struct {
	store  AnnouncementStore
	logger *zap.SugaredLogger
}

// NewAuditorService creates an auditor.
func NewAuditorService(store AnnouncementStore, logger *zap.SugaredLogger) *AuditorService {
	return &AuditorService{store: store, logger: logger}
}

// Run executes one audit pass. now is threaded explicitly so tests control
// the clock.
func (a *AuditorService) Run(ctx context.Context, now time.Time) (*AuditReport, error) {
	records, err := a.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: list records: %w", err)
	}

	report := &AuditReport{
		ByStatus:  make(map[string]int),
		Anomalies: []Anomaly{},
	}

	for i := range records {
		rec := &records[i]
		report.Scanned++

		status := core.ParseStatus(string(rec.Status))
		report.ByStatus[status.String()]++

		if anomaly := a.inspect(rec, status, now); anomaly != nil {
			report.Anomalies = append(report.Anomalies, *anomaly)
			metrics.AuditAnomalies.WithLabelValues(string(anomaly.Kind)).Inc()
		}
	}

	a.logger.Infow("Audit complete",
		"scanned", report.Scanned,
		"anomalies", len(report.Anomalies),
	)
	return report, nil
}

// inspect classifies a single record against the anomaly rules.
func (a *AuditorService) inspect(rec *core.Announcement, status core.Status, now time.Time) *Anomaly {
	switch status {
	case core.StatusDeleted:
		if expiresAt, ok := rec.ExpiresAtTime(); ok && expiresAt.After(now) {
			return &Anomaly{
				Kind:      AnomalyDeletedWithFutureExpiry,
				RecordID:  rec.ID,
				Reference: rec.Reference,
				Status:    status.String(),
				Detail:    fmt.Sprintf("deleted but expires_at %s is still in the future", rec.ExpiresAt),
			}
		}

	case core.StatusExpired:
		if rec.ExpiredAt == "" {
			return &Anomaly{
				Kind:      AnomalyExpiredMissingTimestamp,
				RecordID:  rec.ID,
				Reference: rec.Reference,
				Status:    status.String(),
				Detail:    "expired without an expired_at timestamp",
			}
		}

	case core.StatusPublished:
		if expiresAt, ok := rec.ExpiresAtTime(); ok {
			overdue := now.Sub(expiresAt)
			if overdue > publishedOverdueGrace {
				days := int(overdue.Hours() / 24)
				return &Anomaly{
					Kind:        AnomalyPublishedButExpired,
					RecordID:    rec.ID,
					Reference:   rec.Reference,
					Status:      status.String(),
					Detail:      fmt.Sprintf("published but expires_at %s passed %d day(s) ago", rec.ExpiresAt, days),
					DaysOverdue: days,
				}
			}
		}

	case core.StatusUnknown:
		return &Anomaly{
			Kind:      AnomalyUnknownStatus,
			RecordID:  rec.ID,
			Reference: rec.Reference,
			Status:    string(rec.Status),
			Detail:    fmt.Sprintf("status %q is not a lifecycle state", rec.Status),
		}
	}

	return nil
}
