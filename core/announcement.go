package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Date layouts accepted from the record store. The store is stringly typed
// and historical records carry a mix of date-only and timestamp formats.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Announcement is the central entity: a listing offering or searching for
// spare space in a shipping container. JSON tags match the record store's
// column names exactly.
//
// Field ownership: the engine exclusively owns status, expires_at,
// expired_at and expiration_reason. Shipping dates are written once by the
// submission flow and mutable only through an authenticated edit; the
// sweeper never touches them.
type Announcement struct {
	// ID is the opaque store-assigned record id. It lives outside the
	// field map, so it is never serialized as a field.
	ID string `json:"-"`

	// Reference is the human-readable identifier used in URLs and emails.
	// Assigned once by the engine, globally unique, immutable.
	Reference string `json:"reference,omitempty"`

	RequestType RequestType `json:"request_type,omitempty"`
	Status      Status      `json:"status,omitempty"`

	CreatedAt           string `json:"created_at,omitempty"`
	ShippingDate        string `json:"shipping_date,omitempty"`
	ShippingPeriodStart string `json:"shipping_period_start,omitempty"`
	ShippingPeriodEnd   string `json:"shipping_period_end,omitempty"`

	ExpiresAt        string           `json:"expires_at,omitempty"`
	ExpiredAt        string           `json:"expired_at,omitempty"`
	ExpirationReason ExpirationReason `json:"expiration_reason,omitempty"`

	// ValidationToken is consumed exactly once, on the
	// pending_validation -> published transition.
	ValidationToken string `json:"validation_token,omitempty"`
	// DeleteToken is reusable; it authorizes deletion and edits.
	DeleteToken string `json:"delete_token,omitempty"`

	// Contact and route fields are opaque to the engine; they pass
	// through untouched for the notification hook and the UI layer.
	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	Departure    string `json:"departure,omitempty"`
	Arrival      string `json:"arrival,omitempty"`
	Description  string `json:"description,omitempty"`
}

// ParseStoreDate parses a date or timestamp string as written by the store.
// Returns false for empty or unparseable values; callers treat that as
// "no date available" rather than an error.
func ParseStoreDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ExpiresAtTime returns the parsed expires_at instant, or false when the
// field is empty or malformed.
func (a *Announcement) ExpiresAtTime() (time.Time, bool) {
	return ParseStoreDate(a.ExpiresAt)
}

// CreatedAtTime returns the parsed created_at instant.
func (a *Announcement) CreatedAtTime() (time.Time, bool) {
	return ParseStoreDate(a.CreatedAt)
}

// ExpiryBasis extracts the date fields the expiration rule calculator
// operates on.
func (a *Announcement) ExpiryBasis() ExpiryBasis {
	return ExpiryBasis{
		ShippingDate:      a.ShippingDate,
		ShippingPeriodEnd: a.ShippingPeriodEnd,
		CreatedAt:         a.CreatedAt,
	}
}

// NewReference generates a short human-readable reference for a new
// announcement. References appear in user-facing URLs, so they stay
// lowercase and dash-free.
func NewReference() string {
	id := uuid.New().String()
	return "ann-" + strings.ReplaceAll(id[:13], "-", "")
}

// NewToken generates an opaque credential for validation or deletion links.
func NewToken() string {
	return uuid.New().String()
}
