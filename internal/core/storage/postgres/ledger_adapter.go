package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/itempulse/itempulse/internal/core/tracking"
	"github.com/itempulse/itempulse/internal/observability/metrics"
	"github.com/itempulse/itempulse/internal/resilience/circuitbreaker"
)

// LedgerAdapter implements storage.DedupLedger using PostgreSQL. The
// acceptance decision and the ledger write happen inside one statement; that
// atomicity keeps concurrent submissions on the same key from both being
// accepted.
type LedgerAdapter struct {
	db           *sql.DB
	breaker      *circuitbreaker.CircuitBreaker
	queryTimeout time.Duration

	stmtTryAccept     *sql.Stmt
	stmtRecentEntries *sql.Stmt
	stmtPurgeStale    *sql.Stmt
}

// NewLedgerAdapter creates a LedgerAdapter sharing the given connection.
// The events adapter owns the connection's lifecycle; Close here releases
// only this adapter's prepared statements.
func NewLedgerAdapter(db *sql.DB, queryTimeout time.Duration, breaker *circuitbreaker.CircuitBreaker) (*LedgerAdapter, error) {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}

	stmtTryAccept, err := db.Prepare(queryTryAccept)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare tryAccept statement: %w", err)
	}

	stmtRecentEntries, err := db.Prepare(queryRecentEntries)
	if err != nil {
		stmtTryAccept.Close()
		return nil, fmt.Errorf("failed to prepare recentEntries statement: %w", err)
	}

	stmtPurgeStale, err := db.Prepare(queryPurgeStaleLedger)
	if err != nil {
		stmtTryAccept.Close()
		stmtRecentEntries.Close()
		return nil, fmt.Errorf("failed to prepare purgeStale statement: %w", err)
	}

	slog.Info("[Postgres] Ledger adapter initialized with prepared statements")

	return &LedgerAdapter{
		db:                db,
		breaker:           breaker,
		queryTimeout:      queryTimeout,
		stmtTryAccept:     stmtTryAccept,
		stmtRecentEntries: stmtRecentEntries,
		stmtPurgeStale:    stmtPurgeStale,
	}, nil
}

// ledgerDecision carries the two columns the tryAccept statement returns.
type ledgerDecision struct {
	accepted bool
	prior    sql.NullTime
}

// TryAccept records an acceptance at now unless the key has a prior
// acceptance newer than now minus the gate (the larger of cooldown and
// window). Decision and write are one conditional upsert: there is no
// read-then-write gap for a concurrent submission to slip through. On
// refusal the returned prior lets the caller name the rejection; it is the
// zero time when the blocking entry was written by a concurrent racer after
// this statement's snapshot.
func (a *LedgerAdapter) TryAccept(ctx context.Context, key tracking.DedupKey, now time.Time, cooldown, window time.Duration) (bool, time.Time, error) {
	gate := cooldown
	if window > gate {
		gate = window
	}
	threshold := now.Add(-gate)

	ctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	start := time.Now()
	result, err := a.breaker.Execute(func() (interface{}, error) {
		var d ledgerDecision
		scanErr := a.stmtTryAccept.QueryRowContext(ctx,
			key.Kind,
			key.SessionID,
			key.ItemID,
			now,
			threshold,
		).Scan(&d.accepted, &d.prior)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan acceptance decision: %w", scanErr)
		}
		return d, nil
	})
	metrics.RecordStoreCall("try_accept", time.Since(start), err)

	if err != nil {
		return false, time.Time{}, wrapUnavailable("try accept", err)
	}

	d := result.(ledgerDecision)
	var prior time.Time
	if d.prior.Valid {
		prior = d.prior.Time
	}

	slog.Debug("[Postgres] Ledger decision",
		"key", key.String(),
		"accepted", d.accepted,
		"prior_set", d.prior.Valid)
	return d.accepted, prior, nil
}

// RecentEntries returns the last acceptance time for each given key that has
// one newer than since. One round trip regardless of key count: the key
// triples travel as three parallel arrays and unnest zips them back into
// join rows. Keys without a fresh entry are absent from the result.
func (a *LedgerAdapter) RecentEntries(ctx context.Context, keys []tracking.DedupKey, since time.Time) (map[tracking.DedupKey]time.Time, error) {
	entries := make(map[tracking.DedupKey]time.Time, len(keys))
	if len(keys) == 0 {
		return entries, nil
	}

	kinds := make([]string, len(keys))
	sessions := make([]string, len(keys))
	items := make([]string, len(keys))
	for i, key := range keys {
		kinds[i] = key.Kind
		sessions[i] = key.SessionID
		items[i] = key.ItemID
	}

	ctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	start := time.Now()
	_, err := a.breaker.Execute(func() (interface{}, error) {
		rows, queryErr := a.stmtRecentEntries.QueryContext(ctx,
			pq.Array(kinds),
			pq.Array(sessions),
			pq.Array(items),
			since,
		)
		if queryErr != nil {
			return nil, fmt.Errorf("failed to query recent entries: %w", queryErr)
		}
		defer rows.Close()

		for rows.Next() {
			var key tracking.DedupKey
			var lastAcceptedAt time.Time
			if scanErr := rows.Scan(&key.Kind, &key.SessionID, &key.ItemID, &lastAcceptedAt); scanErr != nil {
				return nil, fmt.Errorf("failed to scan ledger entry: %w", scanErr)
			}
			entries[key] = lastAcceptedAt
		}

		if rowsErr := rows.Err(); rowsErr != nil {
			return nil, fmt.Errorf("error iterating ledger entries: %w", rowsErr)
		}
		return nil, nil
	})
	metrics.RecordStoreCall("recent_entries", time.Since(start), err)

	if err != nil {
		return nil, wrapUnavailable("query recent entries", err)
	}
	return entries, nil
}

// PurgeStale deletes ledger entries whose last acceptance is older than the
// cutoff. Entries that old cannot block any acceptance, so removing them
// only reclaims space.
func (a *LedgerAdapter) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	start := time.Now()
	result, err := a.breaker.Execute(func() (interface{}, error) {
		res, execErr := a.stmtPurgeStale.ExecContext(ctx, cutoff)
		if execErr != nil {
			return nil, execErr
		}
		return res.RowsAffected()
	})
	metrics.RecordStoreCall("purge_ledger", time.Since(start), err)

	if err != nil {
		return 0, wrapUnavailable("purge ledger", err)
	}

	purged := result.(int64)
	slog.Info("[Postgres] Purged stale ledger entries",
		"cutoff", cutoff,
		"purged", purged)
	return purged, nil
}

// Close releases the adapter's prepared statements. The shared *sql.DB is
// owned by the events adapter and stays open.
func (a *LedgerAdapter) Close() error {
	var firstErr error

	if err := a.stmtTryAccept.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close tryAccept statement: %w", err)
	}
	if err := a.stmtRecentEntries.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close recentEntries statement: %w", err)
	}
	if err := a.stmtPurgeStale.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close purgeStale statement: %w", err)
	}

	return firstErr
}
