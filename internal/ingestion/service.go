package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	v1 "github.com/itempulse/itempulse/internal/api/v1"
	"github.com/itempulse/itempulse/internal/core/storage"
	"github.com/itempulse/itempulse/internal/core/tracking"
	"github.com/itempulse/itempulse/internal/hotcache"
	"github.com/itempulse/itempulse/internal/observability/metrics"
)

// Limits bounds a single ingestion call.
type Limits struct {
	MaxBatchSize  int
	WorkerCount   int
	MaxBodySizeMB int
}

// Service is the public entry point for event submission. It orchestrates
// the hot cache, the dedup ledger and the durable event store: the cache
// short-circuits obviously-blocked events, the ledger makes the one
// authoritative accept/reject decision per key, and only accepted events
// reach the store.
type Service struct {
	cache            *hotcache.Cache
	ledger           storage.DedupLedger
	store            storage.EventStore
	policy           tracking.Policy
	maxBatchSize     int
	workerCount      int
	maxBodySizeBytes int
	nowFn            func() time.Time
}

func NewService(cache *hotcache.Cache, ledger storage.DedupLedger, store storage.EventStore, policy tracking.Policy, limits Limits) *Service {
	if cache == nil {
		panic("ingestion: hot cache must not be nil")
	}
	if ledger == nil {
		panic("ingestion: dedup ledger must not be nil")
	}
	if store == nil {
		panic("ingestion: event store must not be nil")
	}
	if limits.MaxBatchSize <= 0 {
		limits.MaxBatchSize = 1000
	}
	if limits.WorkerCount <= 0 {
		limits.WorkerCount = 10
	}
	if limits.MaxBodySizeMB <= 0 {
		limits.MaxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		cache:            cache,
		ledger:           ledger,
		store:            store,
		policy:           policy.Normalized(),
		maxBatchSize:     limits.MaxBatchSize,
		workerCount:      limits.WorkerCount,
		maxBodySizeBytes: limits.MaxBodySizeMB * 1024 * 1024,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.SubmitHandler)
	r.POST("/v1/events/batch", s.SubmitBatchHandler)
}

// Submit decides one event and persists it when accepted.
func (s *Service) Submit(ctx context.Context, evt *v1.Event) tracking.Result {
	started := time.Now()
	defer func() { metrics.RecordSubmit(time.Since(started)) }()

	if evt == nil {
		return s.reject(nil, tracking.ReasonInvalidInput, msgEventRequired)
	}

	s.stamp(evt, s.nowFn())
	if err := evt.Validate(); err != nil {
		return s.reject(evt, tracking.ReasonInvalidInput, err.Error())
	}

	result := s.decide(ctx, evt)
	if !result.IsAccepted() {
		return result
	}

	if err := s.store.AppendEvent(ctx, evt); err != nil {
		// The ledger already recorded the acceptance; leaving that entry in
		// place can only cause extra rejections, never a duplicate accept.
		slog.Error("Failed to append accepted event", "error", err, "event_id", evt.ID)
		return s.reject(evt, tracking.ReasonStoreUnavailable, msgStoreUnavailable)
	}

	metrics.RecordOutcome(evt.Kind, true, "")
	slog.Debug("Event accepted",
		"event_id", evt.ID,
		"event_kind", evt.Kind,
		"item_id", evt.ItemID,
		"session_id", evt.SessionID)
	return result
}

// SubmitBatch decides a whole batch. The result slice is positionally
// aligned with the input; for repeated keys inside one batch only the first
// event in input order can win. Distinct keys are decided in parallel,
// accepted events land in the store through a single batch write.
func (s *Service) SubmitBatch(ctx context.Context, events []*v1.Event) []tracking.Result {
	metrics.BatchSize.Observe(float64(len(events)))

	results := make([]tracking.Result, len(events))
	if len(events) == 0 {
		return results
	}

	receivedAt := s.nowFn()

	groups := make(map[tracking.DedupKey][]int)
	keys := make([]tracking.DedupKey, 0, len(events))
	for i, evt := range events {
		if evt == nil {
			results[i] = s.reject(nil, tracking.ReasonInvalidInput, msgEventRequired)
			continue
		}
		s.stamp(evt, receivedAt)
		if err := evt.Validate(); err != nil {
			results[i] = s.reject(evt, tracking.ReasonInvalidInput, err.Error())
			continue
		}
		key := tracking.KeyOf(evt)
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}

	if len(keys) == 0 {
		return results
	}

	// One bulk ledger read warms the cache for every key in the batch, so
	// definitely-blocked events short-circuit below without their own
	// conditional write. Advisory only: a miss here still goes through
	// TryAccept, and a failed pre-check just falls back to per-key writes.
	recent, err := s.ledger.RecentEntries(ctx, keys, receivedAt.Add(-s.policy.MaxGate()))
	if err != nil {
		slog.Warn("Ledger bulk pre-check failed, falling back to per-key writes", "error", err, "keys", len(keys))
	} else {
		for key, last := range recent {
			s.cache.Remember(key, last)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workerCount)
	for _, key := range keys {
		indices := groups[key]
		eg.Go(func() error {
			s.decideGroup(egCtx, indices, events, results)
			return nil
		})
	}
	_ = eg.Wait()

	toAppend := make([]*v1.Event, 0, len(events))
	for i := range results {
		if results[i].IsAccepted() {
			toAppend = append(toAppend, events[i])
		}
	}
	if len(toAppend) == 0 {
		return results
	}

	if err := s.store.AppendEvents(ctx, toAppend); err != nil {
		// No silent drops: every event the batch write lost is reported as
		// store_unavailable even though its ledger entry was written.
		slog.Error("Failed to append accepted batch", "error", err, "events", len(toAppend))
		for i := range results {
			if results[i].IsAccepted() {
				results[i] = s.reject(events[i], tracking.ReasonStoreUnavailable, msgStoreUnavailable)
			}
		}
		return results
	}

	for i := range results {
		if results[i].IsAccepted() {
			metrics.RecordOutcome(events[i].Kind, true, "")
		}
	}
	return results
}

// decide runs the dedup decision for a validated event: hot cache gate
// first, then the ledger's atomic conditional write. On acceptance the event
// gets its server id and the cache learns the new timestamp. Appending to
// the event store is the caller's job: single submits append immediately,
// batch submits collect and append once.
func (s *Service) decide(ctx context.Context, evt *v1.Event) tracking.Result {
	key := tracking.KeyOf(evt)
	at := evt.OccurredAt

	if last, ok := s.cache.Lookup(key); ok && at.Sub(last) < s.policy.Gate(evt.Kind) {
		metrics.HotCacheHitsTotal.Inc()
		return s.reject(evt, s.policy.Classify(evt.Kind, last, at), msgKeyBlocked)
	}

	accepted, prior, err := s.ledger.TryAccept(ctx, key, at, s.policy.CooldownFor(evt.Kind), s.policy.RateLimitWindow)
	if err != nil {
		slog.Error("Dedup ledger unavailable",
			"error", err,
			"event_kind", evt.Kind,
			"item_id", evt.ItemID,
			"session_id", evt.SessionID)
		return s.reject(evt, tracking.ReasonStoreUnavailable, msgStoreUnavailable)
	}
	if !accepted {
		if !prior.IsZero() {
			// The ledger's answer is authoritative; remembering it lets the
			// cache reject the next retry without a round trip.
			s.cache.Remember(key, prior)
		}
		return s.reject(evt, s.policy.Classify(evt.Kind, prior, at), msgKeyBlocked)
	}

	evt.ID = uuid.NewString()
	s.cache.Remember(key, at)
	return tracking.Accepted(evt)
}

// decideGroup resolves all events sharing one deduplication key, in input
// order. The first acceptance lands in the hot cache, which is what rejects
// the later duplicates in the same group. A store failure poisons only this
// group: remaining events fail without further round trips and other groups
// proceed.
func (s *Service) decideGroup(ctx context.Context, indices []int, events []*v1.Event, results []tracking.Result) {
	unavailable := false
	for _, i := range indices {
		if unavailable {
			results[i] = s.reject(events[i], tracking.ReasonStoreUnavailable, msgStoreUnavailable)
			continue
		}
		results[i] = s.decide(ctx, events[i])
		if results[i].Reason == tracking.ReasonStoreUnavailable {
			unavailable = true
		}
	}
}

// stamp fills server-controlled timestamps. An absent client timestamp
// defaults to receipt time; a supplied one is kept as the decision instant.
func (s *Service) stamp(evt *v1.Event, receivedAt time.Time) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = receivedAt
	} else {
		evt.OccurredAt = evt.OccurredAt.UTC()
	}
	evt.IngestedAt = receivedAt
}

func (s *Service) reject(evt *v1.Event, reason tracking.RejectReason, detail string) tracking.Result {
	metrics.RecordOutcome(metricKind(evt), false, string(reason))
	if evt != nil {
		// Rejections are routine outcomes, not failures.
		slog.Info("Event rejected",
			"reason", reason,
			"event_kind", evt.Kind,
			"item_id", evt.ItemID,
			"session_id", evt.SessionID)
	} else {
		slog.Info("Event rejected", "reason", reason)
	}
	return tracking.Rejected(reason, detail)
}

// metricKind keeps the kind label bounded: client-supplied garbage must not
// mint new metric series.
func metricKind(evt *v1.Event) string {
	if evt != nil && v1.ValidKind(evt.Kind) {
		return evt.Kind
	}
	return "unknown"
}
