// Package retention owns the background hygiene of the tracking stores: hot
// cache eviction on a fixed tick and durable-store purges on a cron schedule.
// Nothing upstream waits on the sweeper, so failures are logged and retried
// on the next fire instead of propagated.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	v1 "github.com/itempulse/itempulse/internal/api/v1"
	"github.com/itempulse/itempulse/internal/core/storage"
	"github.com/itempulse/itempulse/internal/core/tracking"
	"github.com/itempulse/itempulse/internal/hotcache"
	"github.com/itempulse/itempulse/internal/observability/metrics"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	defaultRetentionPeriod = 90 * 24 * time.Hour
	defaultPurgeSchedule   = "@every 1h"
)

// Config sets the sweeper's cadence and horizons. Zero values fall back to
// defaults.
type Config struct {
	// CleanupInterval is how often stale hot cache entries are evicted.
	CleanupInterval time.Duration

	// RetentionPeriod is how long events are kept. Events that occurred
	// earlier than now minus this period are purged.
	RetentionPeriod time.Duration

	// PurgeSchedule is the cron spec that fires durable-store purges,
	// in robfig/cron standard syntax or a descriptor like "@every 1h".
	PurgeSchedule string
}

// Sweeper evicts expired hot cache entries and purges expired rows from the
// event store and the dedup ledger.
type Sweeper struct {
	cache  *hotcache.Cache
	events storage.EventStore
	ledger storage.DedupLedger
	policy tracking.Policy
	cfg    Config
	nowFn  func() time.Time
}

// PurgeReport is the outcome of one purge run.
type PurgeReport struct {
	// EventsDeleted maps event kind to the number of rows removed.
	EventsDeleted map[string]int64 `json:"events_deleted"`

	// LedgerEntriesDeleted is the number of stale dedup keys removed.
	LedgerEntriesDeleted int64 `json:"ledger_entries_deleted"`

	// Cutoff is the occurrence-time horizon events were deleted before.
	Cutoff time.Time `json:"cutoff"`
}

// NewSweeper builds a sweeper over the shared cache and stores.
func NewSweeper(cache *hotcache.Cache, events storage.EventStore, ledger storage.DedupLedger, policy tracking.Policy, cfg Config) *Sweeper {
	if cache == nil {
		panic("retention: hot cache must not be nil")
	}
	if events == nil {
		panic("retention: event store must not be nil")
	}
	if ledger == nil {
		panic("retention: dedup ledger must not be nil")
	}

	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = defaultRetentionPeriod
	}
	if cfg.PurgeSchedule == "" {
		cfg.PurgeSchedule = defaultPurgeSchedule
	}

	return &Sweeper{
		cache:  cache,
		events: events,
		ledger: ledger,
		policy: policy.Normalized(),
		cfg:    cfg,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Start runs the sweeper until ctx is cancelled. Cache eviction rides a
// plain ticker; purges ride a cron schedule so operators can pin them to
// quiet hours.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("[Sweeper] Starting retention sweeper",
		"cleanup_interval", s.cfg.CleanupInterval,
		"retention_period", s.cfg.RetentionPeriod,
		"purge_schedule", s.cfg.PurgeSchedule)

	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(s.cfg.PurgeSchedule, func() {
		s.RunPurge(ctx)
	})
	if err != nil {
		// Config validation parses the schedule at startup; landing here
		// means the sweeper was built without going through it.
		slog.Error("[Sweeper] Invalid purge schedule, purges disabled",
			"schedule", s.cfg.PurgeSchedule,
			"error", err)
	} else {
		c.Start()
	}

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.EvictCache()
		case <-ctx.Done():
			slog.Info("[Sweeper] Stopping (context cancelled)")
			<-c.Stop().Done()
			return
		}
	}
}

// EvictCache drops hot cache entries too old to block anything. The ledger
// stays authoritative, so evicting early can only cost a lookup, never admit
// a duplicate.
func (s *Sweeper) EvictCache() int {
	cutoff := s.nowFn().Add(-s.policy.MaxGate())
	evicted := s.cache.EvictBefore(cutoff)

	metrics.HotCacheEvictionsTotal.Add(float64(evicted))
	metrics.HotCacheEntries.Set(float64(s.cache.Len()))
	metrics.RecordSweep("cache_eviction", nil)

	if evicted > 0 {
		slog.Debug("[Sweeper] Evicted hot cache entries",
			"evicted", evicted,
			"remaining", s.cache.Len())
	}
	return evicted
}

// RunPurge removes expired state from the durable stores: events older than
// the retention period, kind by kind, then dedup ledger entries too old to
// block an acceptance. A failure in one kind does not stop the others; the
// report carries whatever succeeded.
func (s *Sweeper) RunPurge(ctx context.Context) PurgeReport {
	now := s.nowFn()
	report := PurgeReport{
		EventsDeleted: make(map[string]int64, len(v1.Kinds())),
		Cutoff:        now.Add(-s.cfg.RetentionPeriod),
	}

	var firstErr error
	for _, kind := range v1.Kinds() {
		deleted, err := s.events.DeleteEventsBefore(ctx, kind, report.Cutoff)
		if err != nil {
			slog.Error("[Sweeper] Event purge failed",
				"kind", kind,
				"cutoff", report.Cutoff,
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		report.EventsDeleted[kind] = deleted
		metrics.EventsPurgedTotal.WithLabelValues(kind).Add(float64(deleted))
	}

	// Ledger entries older than every gate cannot influence a decision
	// anymore; removing them is garbage collection, not data loss.
	purged, err := s.ledger.PurgeStale(ctx, now.Add(-s.policy.MaxGate()))
	if err != nil {
		slog.Error("[Sweeper] Ledger purge failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		report.LedgerEntriesDeleted = purged
		metrics.LedgerEntriesPurgedTotal.Add(float64(purged))
	}

	metrics.RecordSweep("purge", firstErr)

	if firstErr == nil {
		slog.Info("[Sweeper] Purge complete",
			"cutoff", report.Cutoff,
			"impressions_deleted", report.EventsDeleted[v1.KindImpression],
			"clicks_deleted", report.EventsDeleted[v1.KindClick],
			"ledger_entries_deleted", report.LedgerEntriesDeleted)
	}
	return report
}
