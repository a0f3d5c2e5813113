package core

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
)

// Transition names the four lifecycle transitions.
type Transition string

const (
	// TransitionValidate moves pending_validation -> published (author confirms via emailed link)
	TransitionValidate Transition = "validate"
	// TransitionExpire moves published -> expired (sweeper, time-based)
	TransitionExpire Transition = "expire"
	// TransitionDelete moves pending_validation/published -> deleted (author removes the listing)
	TransitionDelete Transition = "delete"
	// TransitionEdit keeps status published and changes mutable fields only
	TransitionEdit Transition = "edit"
)

// Guard failures. These are expected outcomes surfaced to the caller, not
// system faults; the HTTP layer maps them to response codes without
// inventing new semantics.
var (
	// ErrTokenMismatch is returned when the presented credential does not
	// match the stored token. Reported as "not found" upstream so token
	// probing reveals nothing.
	ErrTokenMismatch = errors.New("token does not match")
	// ErrAlreadyExpired is returned for transitions attempted on an expired record
	ErrAlreadyExpired = errors.New("announcement already expired")
	// ErrAlreadyDeleted is returned for transitions attempted on a deleted record
	ErrAlreadyDeleted = errors.New("announcement already deleted")
	// ErrInvalidTransition is returned when the current status does not permit the transition
	ErrInvalidTransition = errors.New("transition not allowed from current status")
	// ErrNotYetExpired is returned by the expire guard when now precedes expires_at
	ErrNotYetExpired = errors.New("expiration date not reached")
	// ErrImmutableField is returned when an edit touches an engine-owned field
	ErrImmutableField = errors.New("field is immutable through edit")
)

// FieldPatch is a partial field map applied to a single record by id.
type FieldPatch map[string]interface{}

// validTransitions defines the allowed status transitions. expired and
// deleted are terminal: once there, no further transition occurs by this
// engine.
var validTransitions = map[Status][]Status{
	StatusPendingValidation: {StatusPublished, StatusDeleted},
	StatusPublished:         {StatusExpired, StatusDeleted},
	StatusExpired:           {},
	StatusDeleted:           {},
}

// immutableFields are never writable through the edit transition.
var immutableFields = map[string]struct{}{
	"status":            {},
	"reference":         {},
	"request_type":      {},
	"created_at":        {},
	"expired_at":        {},
	"expiration_reason": {},
	"validation_token":  {},
	"delete_token":      {},
}

// CanTransition checks whether a status transition is permitted, without
// evaluating guards.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsFinalState reports whether no further transition is possible from the
// given status.
func (s Status) IsFinalState() bool {
	allowed, exists := validTransitions[s]
	return exists && len(allowed) == 0
}

// AttemptTransition evaluates the guard for a lifecycle transition and, on
// success, returns the field patch that realizes it. The announcement is
// not mutated; the caller applies the patch through the record store so the
// state change is a single write.
//
// now is threaded explicitly so batch jobs and tests control the clock.
func AttemptTransition(a *Announcement, tr Transition, credential string, now time.Time) (FieldPatch, error) {
	switch tr {
	case TransitionValidate:
		if err := requireStatus(a, StatusPendingValidation); err != nil {
			return nil, err
		}
		if !tokenMatches(credential, a.ValidationToken) {
			return nil, ErrTokenMismatch
		}
		// Clearing the token makes it single-use: a second validation
		// attempt fails the match above.
		return FieldPatch{
			"status":           string(StatusPublished),
			"validation_token": "",
		}, nil

	case TransitionExpire:
		if err := requireStatus(a, StatusPublished); err != nil {
			return nil, err
		}
		expiresAt, ok := a.ExpiresAtTime()
		if !ok {
			return nil, fmt.Errorf("expire %s: %w", a.Reference, ErrNoDateBasis)
		}
		if now.Before(expiresAt) {
			return nil, ErrNotYetExpired
		}
		t := ParseRequestType(string(a.RequestType))
		if !t.IsValid() {
			return nil, fmt.Errorf("expire %s: unknown request type %q", a.Reference, a.RequestType)
		}
		return FieldPatch{
			"status":            string(StatusExpired),
			"expired_at":        now.UTC().Format(time.RFC3339),
			"expiration_reason": string(ReasonFor(t)),
		}, nil

	case TransitionDelete:
		if err := requireStatus(a, StatusPendingValidation, StatusPublished); err != nil {
			return nil, err
		}
		if !tokenMatches(credential, a.DeleteToken) {
			return nil, ErrTokenMismatch
		}
		return FieldPatch{
			"status": string(StatusDeleted),
		}, nil

	case TransitionEdit:
		if err := requireStatus(a, StatusPublished); err != nil {
			return nil, err
		}
		if !tokenMatches(credential, a.DeleteToken) {
			return nil, ErrTokenMismatch
		}
		// Edit changes fields, not status; the caller builds the patch
		// and must pass it through CheckEditable.
		return FieldPatch{}, nil

	default:
		return nil, fmt.Errorf("unknown transition %q", tr)
	}
}

// CheckEditable verifies that an edit patch only touches mutable fields.
func CheckEditable(fields FieldPatch) error {
	for name := range fields {
		if _, frozen := immutableFields[name]; frozen {
			return fmt.Errorf("%w: %s", ErrImmutableField, name)
		}
	}
	return nil
}

// requireStatus checks the current status against the allowed set, mapping
// terminal states onto their specific guard errors.
func requireStatus(a *Announcement, allowed ...Status) error {
	for _, s := range allowed {
		if a.Status == s {
			return nil
		}
	}
	switch a.Status {
	case StatusExpired:
		return ErrAlreadyExpired
	case StatusDeleted:
		return ErrAlreadyDeleted
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTransition, a.Status)
	}
}

// tokenMatches compares credentials in constant time. Empty stored tokens
// never match, so a consumed validation token cannot be replayed with an
// empty string.
func tokenMatches(presented, stored string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}
