package core

import (
	"errors"
	"fmt"
	"time"
)

// searchFallbackDays is the validity window for legacy searches that carry
// no shipping period end.
const searchFallbackDays = 60

// ErrNoDateBasis signals that a record has no usable date to derive an
// expiration from. Callers count these as skipped, never default them to an
// arbitrary date.
var ErrNoDateBasis = errors.New("no date basis for expiration")

// ExpiryBasis carries the raw date fields the calculator reads. Values come
// straight from the store; unparseable strings are treated as absent.
type ExpiryBasis struct {
	ShippingDate      string
	ShippingPeriodEnd string
	CreatedAt         string
}

// ComputeExpiry derives the expiration instant for an announcement. It is a
// pure function: no clock reads, no I/O, same inputs always produce the
// same instant, which makes backfill recomputation idempotent.
//
// Rules:
//   - offer: shipping_date + 1 calendar day (valid through the day of
//     shipment, lapses the day after)
//   - search with a period end: first day of the month after the period
//     end's month, + 1 calendar day (month granularity absorbs day-level
//     noise in user-entered periods)
//   - search without a period end: created_at + 60 calendar days
func ComputeExpiry(t RequestType, basis ExpiryBasis) (time.Time, error) {
	switch t {
	case RequestTypeOffer:
		d, ok := ParseStoreDate(basis.ShippingDate)
		if !ok {
			return time.Time{}, fmt.Errorf("offer: %w", ErrNoDateBasis)
		}
		return midnight(d).AddDate(0, 0, 1), nil

	case RequestTypeSearch:
		if end, ok := ParseStoreDate(basis.ShippingPeriodEnd); ok {
			firstOfNext := time.Date(end.Year(), end.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			return firstOfNext.AddDate(0, 0, 1), nil
		}
		created, ok := ParseStoreDate(basis.CreatedAt)
		if !ok {
			return time.Time{}, fmt.Errorf("search: %w", ErrNoDateBasis)
		}
		return midnight(created).AddDate(0, 0, searchFallbackDays), nil

	default:
		return time.Time{}, fmt.Errorf("unknown request type %q", t)
	}
}

// midnight truncates an instant to the start of its UTC day.
func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
