// Package analytics serves read-only aggregates over retained events: per-item
// and per-user counters, impression rankings, and daily time series. It never
// writes; ingestion and retention own the event store's mutations.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	v1 "github.com/itempulse/itempulse/internal/api/v1"
	"github.com/itempulse/itempulse/internal/core/storage"
	"github.com/shopspring/decimal"
)

const (
	defaultTrendingLimit    = 10
	defaultMaxTrendingLimit = 100
	defaultRangeDays        = 30
)

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid analytics query")

var oneHundred = decimal.NewFromInt(100)

// Limits bounds analytics queries. Zero values fall back to defaults.
type Limits struct {
	// MaxTrendingLimit caps the trending list length a caller may request.
	MaxTrendingLimit int

	// DefaultRangeDays is the time-series lookback used when the request
	// names no range.
	DefaultRangeDays int
}

// Service implements the aggregation query layer.
type Service struct {
	store            storage.AnalyticsStore
	maxTrendingLimit int
	rangeDays        int
	nowFn            func() time.Time
}

// NewService creates the analytics service on top of a read-only store.
func NewService(store storage.AnalyticsStore, limits Limits) *Service {
	if store == nil {
		panic("analytics: store must not be nil")
	}
	if limits.MaxTrendingLimit <= 0 {
		limits.MaxTrendingLimit = defaultMaxTrendingLimit
	}
	if limits.DefaultRangeDays <= 0 {
		limits.DefaultRangeDays = defaultRangeDays
	}

	return &Service{
		store:            store,
		maxTrendingLimit: limits.MaxTrendingLimit,
		rangeDays:        limits.DefaultRangeDays,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// ItemStats aggregates one item's counters over an optional time window.
func (s *Service) ItemStats(ctx context.Context, req ItemStatsRequest) (*ItemStatsResponse, error) {
	if req.ItemID == "" {
		return nil, invalidQueryf("item_id is required")
	}
	if err := validateWindow(req.Start, req.End); err != nil {
		return nil, err
	}
	if err := validateSource(req.Source); err != nil {
		return nil, err
	}

	totals, err := s.store.ItemTotals(ctx, storage.Filter{
		ItemID: req.ItemID,
		Start:  req.Start,
		End:    req.End,
		Source: req.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("query item totals: %w", err)
	}

	return &ItemStatsResponse{
		ItemID:           req.ItemID,
		Impressions:      totals.Impressions,
		Clicks:           totals.Clicks,
		UniqueUsers:      totals.UniqueUsers,
		UniqueSessions:   totals.UniqueSessions,
		ClickThroughRate: clickThroughRate(totals.Clicks, totals.Impressions),
		Start:            timePtr(req.Start),
		End:              timePtr(req.End),
	}, nil
}

// Trending ranks items by impression count over an optional time window. The
// store orders the ranking (impressions descending, item id ascending on
// ties) so repeated calls over unchanged data return identical output.
func (s *Service) Trending(ctx context.Context, req TrendingRequest) (*TrendingResponse, error) {
	if req.Limit < 0 {
		return nil, invalidQueryf("limit must not be negative, got %d", req.Limit)
	}
	if err := validateWindow(req.Start, req.End); err != nil {
		return nil, err
	}
	if err := validateSource(req.Source); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultTrendingLimit
	}
	if limit > s.maxTrendingLimit {
		limit = s.maxTrendingLimit
	}

	rows, err := s.store.TopItemsByImpressions(ctx, storage.Filter{
		Start:  req.Start,
		End:    req.End,
		Source: req.Source,
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("query top items: %w", err)
	}

	items := make([]TrendingItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, TrendingItem{
			ItemID:         row.ItemID,
			Impressions:    row.Impressions,
			UniqueUsers:    row.UniqueUsers,
			UniqueSessions: row.UniqueSessions,
		})
	}

	return &TrendingResponse{
		Items: items,
		Start: timePtr(req.Start),
		End:   timePtr(req.End),
	}, nil
}

// UserStats aggregates one user's counters over an optional time window.
func (s *Service) UserStats(ctx context.Context, req UserStatsRequest) (*UserStatsResponse, error) {
	if req.UserID == "" {
		return nil, invalidQueryf("user_id is required")
	}
	if err := validateWindow(req.Start, req.End); err != nil {
		return nil, err
	}
	if err := validateSource(req.Source); err != nil {
		return nil, err
	}

	totals, err := s.store.UserTotals(ctx, storage.Filter{
		UserID: req.UserID,
		Start:  req.Start,
		End:    req.End,
		Source: req.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("query user totals: %w", err)
	}

	return &UserStatsResponse{
		UserID:           req.UserID,
		Impressions:      totals.Impressions,
		Clicks:           totals.Clicks,
		ViewedItemCount:  totals.ViewedItems,
		ClickedItemCount: totals.ClickedItems,
		ClickThroughRate: clickThroughRate(totals.Clicks, totals.Impressions),
		Start:            timePtr(req.Start),
		End:              timePtr(req.End),
	}, nil
}

// TimeSeries returns one item's daily impression and click counts, ascending
// by calendar day. Days without events are omitted from both series. The
// window is req.Days back from now unless the request names explicit bounds.
func (s *Service) TimeSeries(ctx context.Context, req TimeSeriesRequest) (*TimeSeriesResponse, error) {
	if req.ItemID == "" {
		return nil, invalidQueryf("item_id is required")
	}
	if req.Days < 0 {
		return nil, invalidQueryf("days must not be negative, got %d", req.Days)
	}
	if err := validateWindow(req.Start, req.End); err != nil {
		return nil, err
	}

	start, end := req.Start, req.End
	if start.IsZero() && end.IsZero() {
		days := req.Days
		if days == 0 {
			days = s.rangeDays
		}
		end = s.nowFn()
		start = end.AddDate(0, 0, -days)
	}

	counts, err := s.store.DailyCounts(ctx, storage.Filter{
		ItemID: req.ItemID,
		Start:  start,
		End:    end,
	})
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}

	resp := &TimeSeriesResponse{
		ItemID:      req.ItemID,
		Start:       start,
		End:         end,
		Impressions: []DailyPoint{},
		Clicks:      []DailyPoint{},
	}
	for _, c := range counts {
		point := DailyPoint{Date: c.Day.Format("2006-01-02"), Count: c.Count}
		switch c.Kind {
		case v1.KindImpression:
			resp.Impressions = append(resp.Impressions, point)
		case v1.KindClick:
			resp.Clicks = append(resp.Clicks, point)
		}
	}

	return resp, nil
}

// clickThroughRate is clicks per hundred impressions, rounded to two decimal
// places. Zero impressions yield a rate of zero, not a division error.
func clickThroughRate(clicks, impressions int64) decimal.Decimal {
	if impressions == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(clicks).
		Div(decimal.NewFromInt(impressions)).
		Mul(oneHundred).
		Round(2)
}

func validateWindow(start, end time.Time) error {
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return invalidQueryf("end time must be after start time")
	}
	return nil
}

func validateSource(source string) error {
	if source != "" && !v1.ValidSource(source) {
		return invalidQueryf("source %q is not recognized", source)
	}
	return nil
}

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
