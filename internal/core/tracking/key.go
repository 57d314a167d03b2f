// Package tracking holds the deduplication domain model: the identity of an
// interaction, the cooldown/rate-limit policy applied to it, and the outcome
// types the ingestion pipeline produces.
package tracking

import (
	"fmt"

	v1 "github.com/itempulse/itempulse/internal/api/v1"
)

// DedupKey identifies the stream an event is deduplicated within. Kind is
// part of the key: an impression and a click on the same item in the same
// session never suppress each other. All components are case-sensitive.
type DedupKey struct {
	Kind      string
	SessionID string
	ItemID    string
}

// KeyOf builds the deduplication key for an event.
func KeyOf(e *v1.Event) DedupKey {
	return DedupKey{Kind: e.Kind, SessionID: e.SessionID, ItemID: e.ItemID}
}

// String renders the key for shard hashing and log lines.
func (k DedupKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.SessionID, k.ItemID)
}
