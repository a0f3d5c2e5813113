package core

// Status represents the lifecycle state of an announcement
type Status string

const (
	// StatusPendingValidation indicates an announcement submitted but not yet confirmed by its author
	StatusPendingValidation Status = "pending_validation"
	// StatusPublished indicates an announcement visible on the marketplace
	StatusPublished Status = "published"
	// StatusExpired indicates an announcement automatically retired by the sweeper
	StatusExpired Status = "expired"
	// StatusDeleted indicates an announcement removed by its author; the record itself is never dropped
	StatusDeleted Status = "deleted"
	// StatusUnknown is the fallback for values written to the store by other tools
	StatusUnknown Status = "unknown"
)

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is one of the known lifecycle states
func (s Status) IsValid() bool {
	switch s {
	case StatusPendingValidation, StatusPublished, StatusExpired, StatusDeleted:
		return true
	default:
		return false
	}
}

// ParseStatus maps a raw store value onto a Status, falling back to
// StatusUnknown rather than failing on foreign values.
func ParseStatus(raw string) Status {
	s := Status(raw)
	if s.IsValid() {
		return s
	}
	return StatusUnknown
}

// RequestType distinguishes the two kinds of announcements
type RequestType string

const (
	// RequestTypeOffer is an announcement by someone with container space to share
	RequestTypeOffer RequestType = "offer"
	// RequestTypeSearch is an announcement by someone looking for container space
	RequestTypeSearch RequestType = "search"
	// RequestTypeUnknown is the fallback for unrecognized store values
	RequestTypeUnknown RequestType = "unknown"
)

// String returns the string representation
func (t RequestType) String() string {
	return string(t)
}

// IsValid checks if the request type is known
func (t RequestType) IsValid() bool {
	switch t {
	case RequestTypeOffer, RequestTypeSearch:
		return true
	default:
		return false
	}
}

// ParseRequestType maps a raw store value onto a RequestType
func ParseRequestType(raw string) RequestType {
	t := RequestType(raw)
	if t.IsValid() {
		return t
	}
	return RequestTypeUnknown
}

// ExpirationReason records why the sweeper expired an announcement.
// The values are a closed enum: downstream messaging and the auditor key
// off them, so adding one is a breaking change for both.
type ExpirationReason string

const (
	// ReasonDeparturePassed applies to offers whose shipping date has passed
	ReasonDeparturePassed ExpirationReason = "date_depart_passee"
	// ReasonSearchWindowElapsed applies to searches whose stated period has elapsed
	ReasonSearchWindowElapsed ExpirationReason = "delai_recherche_expire"
)

// String returns the string representation
func (r ExpirationReason) String() string {
	return string(r)
}

// IsValid checks if the reason is one of the closed enum values
func (r ExpirationReason) IsValid() bool {
	switch r {
	case ReasonDeparturePassed, ReasonSearchWindowElapsed:
		return true
	default:
		return false
	}
}

// ReasonFor returns the expiration reason that matches an announcement type.
func ReasonFor(t RequestType) ExpirationReason {
	if t == RequestTypeOffer {
		return ReasonDeparturePassed
	}
	return ReasonSearchWindowElapsed
}
