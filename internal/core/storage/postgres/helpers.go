package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/itempulse/itempulse/internal/core/storage"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanItemTotalsRow scans an item aggregate row.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanItemTotalsRow(row scanner, withItemID bool) (storage.ItemTotals, error) {
	var totals storage.ItemTotals

	dest := []interface{}{&totals.Impressions, &totals.Clicks, &totals.UniqueUsers, &totals.UniqueSessions}
	if withItemID {
		dest = append([]interface{}{&totals.ItemID}, dest...)
	}

	if err := row.Scan(dest...); err != nil {
		return storage.ItemTotals{}, fmt.Errorf("failed to scan item totals row: %w", err)
	}
	return totals, nil
}

// nullTime converts a zero time into SQL NULL so optional filter bounds can
// ride a prepared statement.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// nullString converts an empty string into SQL NULL for optional filters.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// wrapUnavailable tags a failed store call with storage.ErrUnavailable so
// callers can classify it with errors.Is, keeping the cause in the message.
func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, storage.ErrUnavailable, err)
}
