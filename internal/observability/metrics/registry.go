// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics track the accept/reject decision pipeline
var (
	// EventsAcceptedTotal counts accepted events by kind
	EventsAcceptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itempulse_events_accepted_total",
			Help: "Total number of accepted events",
		},
		[]string{"kind"},
	)

	// EventsRejectedTotal counts rejected events by kind and reason
	EventsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itempulse_events_rejected_total",
			Help: "Total number of rejected events",
		},
		[]string{"kind", "reason"},
	)

	// SubmitDuration measures the end-to-end decision time for one event
	SubmitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "itempulse_submit_duration_seconds",
			Help:    "Time taken to decide and persist a single event",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
	)

	// BatchSize measures submitted batch sizes
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "itempulse_batch_size",
			Help:    "Number of events per batch submission",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

// Hot cache metrics track the in-process recency cache
var (
	// HotCacheHitsTotal counts submissions short-circuited by the cache
	HotCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "itempulse_hotcache_hits_total",
			Help: "Total number of rejections decided by the hot cache alone",
		},
	)

	// HotCacheEntries tracks the current number of cached keys
	HotCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "itempulse_hotcache_entries",
			Help: "Number of deduplication keys currently in the hot cache",
		},
	)

	// HotCacheEvictionsTotal counts entries removed by TTL or capacity pressure
	HotCacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "itempulse_hotcache_evictions_total",
			Help: "Total number of hot cache entries evicted",
		},
	)
)

// Retention metrics track sweeper activity
var (
	// SweepRunsTotal counts sweeper task runs by task and result
	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itempulse_sweep_runs_total",
			Help: "Total number of retention sweeper runs",
		},
		[]string{"task", "result"}, // task: cache_eviction, purge; result: ok, error
	)

	// EventsPurgedTotal counts events deleted by retention purges
	EventsPurgedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itempulse_events_purged_total",
			Help: "Total number of events removed by retention purges",
		},
		[]string{"kind"},
	)

	// LedgerEntriesPurgedTotal counts stale ledger entries removed
	LedgerEntriesPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "itempulse_ledger_entries_purged_total",
			Help: "Total number of stale dedup ledger entries removed",
		},
	)
)

// Store metrics track durable store health
var (
	// StoreErrorsTotal counts store calls that failed by operation
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itempulse_store_errors_total",
			Help: "Total number of failed store operations",
		},
		[]string{"operation"},
	)

	// StoreQueryDuration measures store call duration by operation
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "itempulse_store_query_duration_seconds",
			Help:    "Store call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)
)

// RecordOutcome records a single submission outcome.
func RecordOutcome(kind string, accepted bool, reason string) {
	if accepted {
		EventsAcceptedTotal.WithLabelValues(kind).Inc()
		return
	}
	EventsRejectedTotal.WithLabelValues(kind, reason).Inc()
}

// RecordSubmit records the duration of one submission decision.
func RecordSubmit(duration time.Duration) {
	SubmitDuration.Observe(duration.Seconds())
}

// RecordStoreCall records one store call's duration and failure state.
func RecordStoreCall(operation string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// RecordSweep records a sweeper task run.
func RecordSweep(task string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SweepRunsTotal.WithLabelValues(task, result).Inc()
}
