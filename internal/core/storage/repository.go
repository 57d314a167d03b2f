package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/itempulse/itempulse/internal/api/v1"
	"github.com/itempulse/itempulse/internal/core/tracking"
)

// ErrUnavailable marks a store call that did not reach a decision: timeouts,
// an open circuit breaker, connection loss. Callers translate it into a
// store_unavailable rejection; it never means "rejected on the merits".
var ErrUnavailable = errors.New("event store unavailable")

// EventStore appends accepted events and owns their retention.
type EventStore interface {
	// AppendEvent persists one accepted event.
	AppendEvent(ctx context.Context, event *v1.Event) error

	// AppendEvents persists a batch of accepted events in one transaction.
	// Either every event lands or none does.
	AppendEvents(ctx context.Context, events []*v1.Event) error

	// DeleteEventsBefore removes events of one kind that occurred before
	// the cutoff and reports how many went away.
	DeleteEventsBefore(ctx context.Context, kind string, cutoff time.Time) (int64, error)
}

// DedupLedger is the authority on which events have been accepted per
// deduplication key. Implementations must make TryAccept a single atomic
// store operation: no caller-visible read-then-write gap.
type DedupLedger interface {
	// TryAccept records an acceptance at now if the key has no prior
	// acceptance newer than now minus the gate (the larger of cooldown and
	// window). It returns whether the acceptance was recorded and, on
	// refusal, the prior acceptance time so the caller can name the
	// rejection. prior is the zero time when the entry raced away between
	// the decision and the read-back.
	TryAccept(ctx context.Context, key tracking.DedupKey, now time.Time, cooldown, window time.Duration) (accepted bool, prior time.Time, err error)

	// RecentEntries returns the last acceptance time for each of the given
	// keys that has one newer than since. One round trip regardless of key
	// count; keys without a fresh entry are absent from the result.
	RecentEntries(ctx context.Context, keys []tracking.DedupKey, since time.Time) (map[tracking.DedupKey]time.Time, error)

	// PurgeStale deletes ledger entries whose last acceptance is older
	// than the cutoff. Entries that old can no longer block anything.
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Filter scopes an analytics query. Zero-value fields mean "no constraint";
// Start/End bound the event's occurrence time as a half-open [Start, End)
// interval when set.
type Filter struct {
	ItemID    string
	UserID    string
	SessionID string
	Kind      string
	Source    string
	Start     time.Time
	End       time.Time
}

// ItemTotals is one item's aggregate counters over a filter scope.
type ItemTotals struct {
	ItemID         string
	Impressions    int64
	Clicks         int64
	UniqueUsers    int64
	UniqueSessions int64
}

// UserTotals is one user's aggregate counters over a filter scope.
type UserTotals struct {
	UserID       string
	Impressions  int64
	Clicks       int64
	ViewedItems  int64
	ClickedItems int64
}

// DailyCount is one calendar day's counters for a single kind. Days with no
// events are absent, not zero-filled.
type DailyCount struct {
	Day   time.Time
	Kind  string
	Count int64
}

// AnalyticsStore serves read-only aggregates over retained events.
type AnalyticsStore interface {
	// ItemTotals aggregates counters for filter.ItemID.
	ItemTotals(ctx context.Context, filter Filter) (ItemTotals, error)

	// UserTotals aggregates counters for filter.UserID.
	UserTotals(ctx context.Context, filter Filter) (UserTotals, error)

	// TopItemsByImpressions lists up to limit items ordered by impression
	// count descending, ties broken by item id ascending.
	TopItemsByImpressions(ctx context.Context, filter Filter, limit int) ([]ItemTotals, error)

	// DailyCounts buckets filter-scoped events per UTC calendar day and
	// kind, ascending by day. Sparse: only days with events appear.
	DailyCounts(ctx context.Context, filter Filter) ([]DailyCount, error)
}
