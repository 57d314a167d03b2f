package v1

import (
	"fmt"
	"time"
)

// Event kinds. Impressions and clicks are tracked independently: they never
// share a deduplication key even for the same session and item.
const (
	KindImpression = "impression"
	KindClick      = "click"
)

// Event sources. "search" is the legacy label older clients still send for
// search result pages; it is accepted on the wire and stored as-is.
const (
	SourceSearchResults   = "search_results"
	SourceBrowse          = "browse"
	SourceRecommendations = "recommendations"
	SourceDirect          = "direct"
	SourceSearch          = "search"
)

// Event is a single interaction with a catalog item.
type Event struct {
	// ID is assigned by the server when the event is accepted. It exists for
	// audit and log correlation only and plays no part in deduplication.
	ID string `json:"id,omitempty"`

	// Kind is the interaction type: "impression" or "click".
	Kind string `json:"event_kind"`

	// ItemID identifies the catalog item the interaction happened on.
	// This field is REQUIRED and has no default value.
	ItemID string `json:"item_id"`

	// SessionID identifies the browsing session that produced the event.
	// Together with Kind and ItemID it forms the deduplication key.
	SessionID string `json:"session_id"`

	// UserID identifies the authenticated user, when known. Anonymous
	// traffic leaves it empty; per-user analytics skip empty values.
	UserID string `json:"user_id,omitempty"`

	// Source records the surface the interaction came from.
	Source string `json:"source"`

	// SearchQuery is the query that produced the result list, when the
	// source is a search surface.
	SearchQuery string `json:"search_query,omitempty"`

	// Position is the 0-based rank of the item in the surface that showed
	// it. Zero means "not part of a ranked list".
	Position int `json:"position_in_results,omitempty"`

	// OccurredAt is when the interaction happened on the client's clock.
	// Absent on the wire means "now": the ingestion service stamps receipt
	// time before the event reaches storage.
	OccurredAt time.Time `json:"timestamp"`

	// IngestedAt is when the service received the event (server clock).
	// Set by the Ingestion Service, not the client.
	IngestedAt time.Time `json:"ingested_at"`
}

// ValidKind reports whether k is a recognized event kind.
func ValidKind(k string) bool {
	return k == KindImpression || k == KindClick
}

// ValidSource reports whether s is a recognized event source.
func ValidSource(s string) bool {
	switch s {
	case SourceSearchResults, SourceBrowse, SourceRecommendations, SourceDirect, SourceSearch:
		return true
	}
	return false
}

// Kinds lists every event kind. Retention sweeps iterate it so a new kind
// cannot silently escape purging.
func Kinds() []string {
	return []string{KindImpression, KindClick}
}

// Validate ensures the event has all required attributes and recognized
// enum values. It does not touch timestamps: defaulting an absent OccurredAt
// is an ingestion decision, not a structural one.
func (e *Event) Validate() error {
	if !ValidKind(e.Kind) {
		return fmt.Errorf("event_kind must be %q or %q, got %q", KindImpression, KindClick, e.Kind)
	}

	if e.ItemID == "" {
		return fmt.Errorf("item_id is required")
	}

	if e.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	if !ValidSource(e.Source) {
		return fmt.Errorf("source %q is not recognized", e.Source)
	}

	if e.Position < 0 {
		return fmt.Errorf("position_in_results must not be negative, got %d", e.Position)
	}

	return nil
}
