// Package service implements the engine's batch jobs (sweep, backfill,
// audit) and the token-guarded transition service used by the HTTP layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"groupage/core"
	"groupage/metrics"
	"groupage/notify"

	"go.uber.org/zap"
)

// AnnouncementStore defines the record store operations the services need.
// Defined here (consumer package) following Interface Segregation Principle.
type AnnouncementStore interface {
	ListActive(ctx context.Context) ([]core.Announcement, error)
	ListPublished(ctx context.Context) ([]core.Announcement, error)
	ListAll(ctx context.Context) ([]core.Announcement, error)
	GetByReference(ctx context.Context, reference string) (*core.Announcement, error)
	Patch(ctx context.Context, id string, fields core.FieldPatch) (*core.Announcement, error)
}

// Pacing defaults: after every batch of records, the job sleeps before
// continuing, to stay under the store's rate limits.
const (
	defaultPauseEvery = 10
	defaultPauseDelay = 1 * time.Second
)

// ErrSweepInProgress is returned when the advisory lock is already held.
var ErrSweepInProgress = errors.New("another sweep holds the advisory lock")

// SweepSummary is the advisory report of a single sweeper run.
type SweepSummary struct {
	Processed int  `json:"processed" yaml:"processed"`
	Expired   int  `json:"expired" yaml:"expired"`
	Skipped   int  `json:"skipped" yaml:"skipped"`
	Errors    int  `json:"errors" yaml:"errors"`
	DryRun    bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// SweeperService drives published announcements past their expires_at into
// the expired state. Intended cadence: daily, from an external scheduler.
//
// PRECONDITION: runs must not overlap. The scheduler is responsible for
// single-writer scheduling; when a Locker is provided it additionally
// rejects overlapping runs, but the lock is advisory, not a correctness
// mechanism.
type SweeperService struct {
	store      AnnouncementStore
	locker     Locker
	notifier   notify.Notifier
	logger     *zap.SugaredLogger
	pauseEvery int
	pauseDelay time.Duration
	dryRun     bool
}

// SweeperOption configures a SweeperService.
type SweeperOption func(*SweeperService)

// WithLocker sets the advisory lock guarding against overlapping runs.
func WithLocker(l Locker) SweeperOption {
	return func(s *SweeperService) { s.locker = l }
}

// WithNotifier sets the expiration notification hook.
func WithNotifier(n notify.Notifier) SweeperOption {
	return func(s *SweeperService) { s.notifier = n }
}

// WithPacing overrides the pause-every-N-records pacing.
func WithPacing(every int, delay time.Duration) SweeperOption {
	return func(s *SweeperService) {
		if every > 0 {
			s.pauseEvery = every
		}
		s.pauseDelay = delay
	}
}

// WithDryRun makes the sweeper report what it would expire without patching.
func WithDryRun(dry bool) SweeperOption {
	return func(s *SweeperService) { s.dryRun = dry }
}

// NewSweeperService creates a sweeper.
func NewSweeperService(store AnnouncementStore, logger *zap.SugaredLogger, opts ...SweeperOption) *SweeperService {
	s := &SweeperService{
		store:      store,
		notifier:   notify.Discard(),
		logger:     logger,
		pauseEvery: defaultPauseEvery,
		pauseDelay: defaultPauseDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one sweep. A listing failure is fatal to the run; per-record
// patch failures are logged, counted and left for the next run, which is
// safe because the expire guard is idempotent and the record stays
// published. now is threaded explicitly so tests control the clock.
func (s *SweeperService) Run(ctx context.Context, now time.Time) (*SweepSummary, error) {
	if s.locker != nil {
		acquired, err := s.locker.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("sweep: acquire lock: %w", err)
		}
		if !acquired {
			return nil, ErrSweepInProgress
		}
		defer func() {
			if err := s.locker.Release(ctx); err != nil {
				s.logger.Warnw("Failed to release sweep lock", "error", err)
			}
		}()
	}

	candidates, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: list candidates: %w", err)
	}

	summary := &SweepSummary{DryRun: s.dryRun}
	if len(candidates) == 0 {
		s.logger.Info("Sweep complete: no active announcements")
		return summary, nil
	}

	for i := range candidates {
		if err := s.pace(ctx, summary.Processed); err != nil {
			return summary, err
		}
		summary.Processed++

		a := &candidates[i]
		patch, err := core.AttemptTransition(a, core.TransitionExpire, "", now)
		if err != nil {
			if errors.Is(err, core.ErrNotYetExpired) {
				summary.Skipped++
				continue
			}
			if errors.Is(err, core.ErrNoDateBasis) {
				// No fallback rule exists for offers without a date;
				// skip without erroring.
				s.logger.Debugw("Skipping announcement without usable expiry", "reference", a.Reference)
				summary.Skipped++
				continue
			}
			summary.Errors++
			metrics.SweepErrors.Inc()
			s.logger.Errorw("Expire guard failed", "id", a.ID, "reference", a.Reference, "error", err)
			continue
		}

		if s.dryRun {
			summary.Expired++
			s.logger.Infow("Would expire announcement", "reference", a.Reference)
			continue
		}

		if _, err := s.store.Patch(ctx, a.ID, patch); err != nil {
			summary.Errors++
			metrics.SweepErrors.Inc()
			s.logger.Errorw("Failed to expire announcement", "id", a.ID, "reference", a.Reference, "error", err)
			continue
		}

		summary.Expired++
		reason := core.ReasonFor(a.RequestType)
		metrics.AnnouncementsExpired.WithLabelValues(string(reason)).Inc()
		s.logger.Infow("Expired announcement", "reference", a.Reference, "reason", reason)

		if err := s.notifier.AnnouncementExpired(ctx, a, reason); err != nil {
			s.logger.Warnw("Expiration notification failed", "reference", a.Reference, "error", err)
		}
	}

	s.logger.Infow("Sweep complete",
		"processed", summary.Processed,
		"expired", summary.Expired,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
	)
	return summary, nil
}

// pace sleeps between batches of records. Processing is deliberately
// sequential; the fixed pause keeps the store's rate limiter happy.
func (s *SweeperService) pace(ctx context.Context, processed int) error {
	if processed == 0 || processed%s.pauseEvery != 0 || s.pauseDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.pauseDelay):
		return nil
	}
}
