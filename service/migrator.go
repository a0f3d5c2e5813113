package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"groupage/core"
	"groupage/metrics"

	"go.uber.org/zap"
)

// MigrationSummary reports one backfill run.
type MigrationSummary struct {
	Scanned        int  `json:"scanned" yaml:"scanned"`
	Backfilled     int  `json:"backfilled" yaml:"backfilled"`
	AlreadySet     int  `json:"already_set" yaml:"already_set"`
	SkippedNoBasis int  `json:"skipped_no_basis" yaml:"skipped_no_basis"`
	Errors         int  `json:"errors" yaml:"errors"`
	DryRun         bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// MigratorService computes and persists expires_at on historical records
// that predate the expiration rule. Idempotent by construction: records with
// expires_at already set are never touched, so re-running changes nothing.
type MigratorService struct {
	store      AnnouncementStore
	logger     *zap.SugaredLogger
	pauseEvery int
	pauseDelay time.Duration
	dryRun     bool
}

// MigratorOption configures a MigratorService.
type MigratorOption func(*MigratorService)

// WithMigratorPacing overrides the pause-every-N-records pacing.
func WithMigratorPacing(every int, delay time.Duration) MigratorOption {
	return func(m *MigratorService) {
		if every > 0 {
			m.pauseEvery = every
		}
		m.pauseDelay = delay
	}
}

// WithMigratorDryRun reports what would be backfilled without patching.
func WithMigratorDryRun(dry bool) MigratorOption {
	return func(m *MigratorService) { m.dryRun = dry }
}

// NewMigratorService creates a backfill migrator.
func NewMigratorService(store AnnouncementStore, logger *zap.SugaredLogger, opts ...MigratorOption) *MigratorService {
	m := &MigratorService{
		store:      store,
		logger:     logger,
		pauseEvery: defaultPauseEvery,
		pauseDelay: defaultPauseDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes one backfill pass over all published records. Records with
// no date basis (an offer without a shipping date) are counted as skipped,
// never defaulted to an invented expiration.
func (m *MigratorService) Run(ctx context.Context) (*MigrationSummary, error) {
	records, err := m.store.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("backfill: list published: %w", err)
	}

	summary := &MigrationSummary{DryRun: m.dryRun}
	for i := range records {
		if err := m.pace(ctx, summary.Scanned); err != nil {
			return summary, err
		}
		summary.Scanned++

		a := &records[i]
		if a.ExpiresAt != "" {
			summary.AlreadySet++
			continue
		}

		expiry, err := core.ComputeExpiry(a.RequestType, a.ExpiryBasis())
		if err != nil {
			if errors.Is(err, core.ErrNoDateBasis) {
				summary.SkippedNoBasis++
				metrics.BackfillSkipped.Inc()
				m.logger.Infow("No date basis, leaving record unexpiring",
					"reference", a.Reference, "request_type", a.RequestType)
				continue
			}
			summary.Errors++
			m.logger.Errorw("Expiry computation failed", "id", a.ID, "reference", a.Reference, "error", err)
			continue
		}

		if m.dryRun {
			summary.Backfilled++
			m.logger.Infow("Would backfill expires_at",
				"reference", a.Reference, "expires_at", expiry.Format(time.RFC3339))
			continue
		}

		patch := core.FieldPatch{"expires_at": expiry.Format(time.RFC3339)}
		if _, err := m.store.Patch(ctx, a.ID, patch); err != nil {
			summary.Errors++
			m.logger.Errorw("Failed to backfill expires_at", "id", a.ID, "reference", a.Reference, "error", err)
			continue
		}

		summary.Backfilled++
		metrics.RecordsBackfilled.Inc()
	}

	m.logger.Infow("Backfill complete",
		"scanned", summary.Scanned,
		"backfilled", summary.Backfilled,
		"already_set", summary.AlreadySet,
		"skipped_no_basis", summary.SkippedNoBasis,
		"errors", summary.Errors,
	)
	return summary, nil
}

func (m *MigratorService) pace(ctx context.Context, processed int) error {
	if processed == 0 || processed%m.pauseEvery != 0 || m.pauseDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.pauseDelay):
		return nil
	}
}
