package postgres

// SQL for event storage, the dedup ledger, and analytics aggregation.
//
// Optional filter parameters use the ($n::type IS NULL OR column ...) guard
// so one prepared statement serves every filter combination; the explicit
// casts are required for statements prepared with nullable parameters.

const (
	// queryAppendEvent inserts one accepted event. The events table has no
	// uniqueness beyond its sequence: acceptance was already decided by the
	// dedup ledger, so a plain insert is correct here.
	queryAppendEvent = `
		INSERT INTO events (
			event_uid, event_kind, item_id, session_id, user_id,
			source, search_query, position_in_results, occurred_at, ingested_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	// queryDeleteEventsBefore removes one kind's events older than the
	// retention cutoff. Kind-scoped so the sweeper can report counts per
	// kind and a failure in one kind does not mask the other.
	queryDeleteEventsBefore = `
		DELETE FROM events
		WHERE event_kind = $1
		  AND occurred_at < $2
	`

	// queryTryAccept decides an acceptance in one statement. The prior CTE
	// reads the existing ledger entry from the statement snapshot; the
	// attempt CTE inserts the key or, on conflict, advances
	// last_accepted_at only when the existing acceptance is older than the
	// gate ($5 = now - max(cooldown, window)). The guarded update returns a
	// row exactly when the acceptance was recorded.
	//
	// Under a same-key race the loser's ON CONFLICT re-checks the winner's
	// committed row, fails the guard, and returns no row, while its prior
	// CTE still sees the pre-race snapshot. Callers treat a refusal with a
	// NULL prior as a duplicate.
	queryTryAccept = `
		WITH prior AS (
			SELECT last_accepted_at
			FROM dedup_ledger
			WHERE event_kind = $1
			  AND session_id = $2
			  AND item_id = $3
		),
		attempt AS (
			INSERT INTO dedup_ledger (event_kind, session_id, item_id, last_accepted_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (event_kind, session_id, item_id) DO UPDATE
				SET last_accepted_at = EXCLUDED.last_accepted_at
				WHERE dedup_ledger.last_accepted_at <= $5
			RETURNING last_accepted_at
		)
		SELECT
			EXISTS (SELECT 1 FROM attempt)          AS accepted,
			(SELECT last_accepted_at FROM prior)    AS prior_accepted_at
	`

	// queryRecentEntries resolves many keys in one round trip. The key
	// triples arrive as three parallel arrays; unnest zips them back into
	// rows to join against the ledger. Only entries newer than $4 matter,
	// since older ones can no longer block an acceptance.
	queryRecentEntries = `
		SELECT l.event_kind, l.session_id, l.item_id, l.last_accepted_at
		FROM dedup_ledger l
		JOIN unnest($1::text[], $2::text[], $3::text[]) AS k(event_kind, session_id, item_id)
		  ON l.event_kind = k.event_kind
		 AND l.session_id = k.session_id
		 AND l.item_id = k.item_id
		WHERE l.last_accepted_at > $4
	`

	// queryPurgeStaleLedger garbage-collects ledger entries whose last
	// acceptance predates every policy horizon.
	queryPurgeStaleLedger = `
		DELETE FROM dedup_ledger
		WHERE last_accepted_at < $1
	`

	// queryItemTotals aggregates one item's counters. Aggregates over an
	// empty scope still return a single all-zero row. Empty user_id marks
	// anonymous traffic and is excluded from the distinct-user count.
	queryItemTotals = `
		SELECT
			COUNT(*) FILTER (WHERE event_kind = 'impression')            AS impressions,
			COUNT(*) FILTER (WHERE event_kind = 'click')                 AS clicks,
			COUNT(DISTINCT user_id) FILTER (WHERE user_id <> '')         AS unique_users,
			COUNT(DISTINCT session_id)                                   AS unique_sessions
		FROM events
		WHERE item_id = $1
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at < $3)
		  AND ($4::text IS NULL OR source = $4)
	`

	// queryUserTotals aggregates one user's counters, including how many
	// distinct items they viewed and clicked.
	queryUserTotals = `
		SELECT
			COUNT(*) FILTER (WHERE event_kind = 'impression')                  AS impressions,
			COUNT(*) FILTER (WHERE event_kind = 'click')                       AS clicks,
			COUNT(DISTINCT item_id) FILTER (WHERE event_kind = 'impression')   AS viewed_items,
			COUNT(DISTINCT item_id) FILTER (WHERE event_kind = 'click')        AS clicked_items
		FROM events
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at < $3)
		  AND ($4::text IS NULL OR source = $4)
	`

	// queryTopItems ranks items by impressions. Ordering lives in SQL so
	// the ranking is deterministic: impression count descending, then
	// item_id ascending for ties.
	queryTopItems = `
		SELECT
			item_id,
			COUNT(*) FILTER (WHERE event_kind = 'impression')            AS impressions,
			COUNT(*) FILTER (WHERE event_kind = 'click')                 AS clicks,
			COUNT(DISTINCT user_id) FILTER (WHERE user_id <> '')         AS unique_users,
			COUNT(DISTINCT session_id)                                   AS unique_sessions
		FROM events
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at < $2)
		  AND ($3::text IS NULL OR source = $3)
		GROUP BY item_id
		ORDER BY impressions DESC, item_id ASC
		LIMIT $4
	`

	// queryDailyCounts buckets one item's events per UTC calendar day and
	// kind. Sparse by construction: days without events produce no rows.
	queryDailyCounts = `
		SELECT
			(occurred_at AT TIME ZONE 'UTC')::date AS day,
			event_kind,
			COUNT(*)                               AS total
		FROM events
		WHERE item_id = $1
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at < $3)
		GROUP BY day, event_kind
		ORDER BY day ASC, event_kind ASC
	`
)
