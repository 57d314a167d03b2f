package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemStatsRequest scopes the per-item aggregate query. Start and End are
// optional; when both are set they form a half-open [Start, End) window over
// the event occurrence time.
type ItemStatsRequest struct {
	ItemID string
	Start  time.Time
	End    time.Time
	Source string
}

// ItemStatsResponse is one item's aggregate counters.
type ItemStatsResponse struct {
	ItemID           string          `json:"item_id"`
	Impressions      int64           `json:"impressions"`
	Clicks           int64           `json:"clicks"`
	UniqueUsers      int64           `json:"unique_users"`
	UniqueSessions   int64           `json:"unique_sessions"`
	ClickThroughRate decimal.Decimal `json:"click_through_rate"`
	Start            *time.Time      `json:"start,omitempty"`
	End              *time.Time      `json:"end,omitempty"`
}

// TrendingRequest scopes the impression ranking query.
type TrendingRequest struct {
	Limit  int
	Start  time.Time
	End    time.Time
	Source string
}

// TrendingItem is one row of the impression ranking.
type TrendingItem struct {
	ItemID         string `json:"item_id"`
	Impressions    int64  `json:"impressions"`
	UniqueUsers    int64  `json:"unique_users"`
	UniqueSessions int64  `json:"unique_sessions"`
}

// TrendingResponse lists items ordered by impression count descending, ties
// broken by item id ascending.
type TrendingResponse struct {
	Items []TrendingItem `json:"items"`
	Start *time.Time     `json:"start,omitempty"`
	End   *time.Time     `json:"end,omitempty"`
}

// UserStatsRequest scopes the per-user aggregate query.
type UserStatsRequest struct {
	UserID string
	Start  time.Time
	End    time.Time
	Source string
}

// UserStatsResponse is one user's aggregate counters. Viewed and clicked
// item counts are distinct items, not event totals.
type UserStatsResponse struct {
	UserID           string          `json:"user_id"`
	Impressions      int64           `json:"impressions"`
	Clicks           int64           `json:"clicks"`
	ViewedItemCount  int64           `json:"viewed_item_count"`
	ClickedItemCount int64           `json:"clicked_item_count"`
	ClickThroughRate decimal.Decimal `json:"click_through_rate"`
	Start            *time.Time      `json:"start,omitempty"`
	End              *time.Time      `json:"end,omitempty"`
}

// TimeSeriesRequest scopes the daily activity query for one item. Days counts
// back from now when Start/End are absent; explicit Start/End win over Days.
type TimeSeriesRequest struct {
	ItemID string
	Days   int
	Start  time.Time
	End    time.Time
}

// DailyPoint is one calendar day's event count. Date is the UTC day in
// YYYY-MM-DD form.
type DailyPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// TimeSeriesResponse carries both per-day series for one item, ascending by
// date. Both series are sparse: days without events are omitted, not
// zero-filled.
type TimeSeriesResponse struct {
	ItemID      string       `json:"item_id"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	Impressions []DailyPoint `json:"impressions"`
	Clicks      []DailyPoint `json:"clicks"`
}
