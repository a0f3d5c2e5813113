package service

import (
	"context"
	"fmt"
	"time"

	"groupage/core"
	"groupage/metrics"

	"go.uber.org/zap"
)

// TransitionService applies user-triggered lifecycle transitions: the
// validate/delete/edit requests arriving through the HTTP layer. Guards
// live in core; this service fetches the record, evaluates the guard and
// applies the resulting patch as a single store write.
type TransitionService struct {
	store  AnnouncementStore
	logger *zap.SugaredLogger
}

// NewTransitionService creates a transition service.
func NewTransitionService(store AnnouncementStore, logger *zap.SugaredLogger) *TransitionService {
	return &TransitionService{store: store, logger: logger}
}

// Validate confirms a pending announcement with its single-use validation
// token and publishes it.
func (t *TransitionService) Validate(ctx context.Context, reference, token string, now time.Time) (*core.Announcement, error) {
	return t.apply(ctx, reference, core.TransitionValidate, token, nil, now)
}

// Delete marks an announcement deleted, authorized by its delete token.
func (t *TransitionService) Delete(ctx context.Context, reference, token string, now time.Time) (*core.Announcement, error) {
	return t.apply(ctx, reference, core.TransitionDelete, token, nil, now)
}

// Edit updates mutable fields of a published announcement, authorized by
// its delete token. Engine-owned fields are rejected.
func (t *TransitionService) Edit(ctx context.Context, reference, token string, fields core.FieldPatch, now time.Time) (*core.Announcement, error) {
	if err := core.CheckEditable(fields); err != nil {
		metrics.GuardFailures.WithLabelValues(string(core.TransitionEdit)).Inc()
		return nil, err
	}
	return t.apply(ctx, reference, core.TransitionEdit, token, fields, now)
}

func (t *TransitionService) apply(ctx context.Context, reference string, tr core.Transition, credential string, editFields core.FieldPatch, now time.Time) (*core.Announcement, error) {
	a, err := t.store.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", tr, reference, err)
	}

	patch, err := core.AttemptTransition(a, tr, credential, now)
	if err != nil {
		metrics.GuardFailures.WithLabelValues(string(tr)).Inc()
		// Guard failures are expected outcomes, not system faults.
		t.logger.Debugw("Transition rejected", "transition", tr, "reference", reference, "error", err)
		return nil, err
	}

	if tr == core.TransitionEdit {
		patch = editFields
	}
	if len(patch) == 0 {
		return a, nil
	}

	updated, err := t.store.Patch(ctx, a.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", tr, reference, err)
	}

	metrics.TransitionsApplied.WithLabelValues(string(tr)).Inc()
	t.logger.Infow("Transition applied", "transition", tr, "reference", reference, "status", updated.Status)
	return updated, nil
}
