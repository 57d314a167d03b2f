package analytics

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	v1 "github.com/itempulse/itempulse/internal/api/v1"
	"github.com/itempulse/itempulse/internal/core/storage"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestItemStats_ComputesClickThroughRate(t *testing.T) {
	store := &fakeAnalyticsStore{itemTotals: storage.ItemTotals{
		Impressions:    10,
		Clicks:         2,
		UniqueUsers:    4,
		UniqueSessions: 7,
	}}
	svc := newTestService(store)

	resp, err := svc.ItemStats(context.Background(), ItemStatsRequest{ItemID: "item-1"})
	require.NoError(t, err)

	require.Equal(t, "item-1", resp.ItemID)
	require.Equal(t, int64(10), resp.Impressions)
	require.Equal(t, int64(2), resp.Clicks)
	require.Equal(t, int64(4), resp.UniqueUsers)
	require.Equal(t, int64(7), resp.UniqueSessions)
	require.True(t, resp.ClickThroughRate.Equal(decimal.NewFromInt(20)),
		"want CTR 20, got %s", resp.ClickThroughRate)
}

func TestItemStats_RoundsRateToTwoPlaces(t *testing.T) {
	store := &fakeAnalyticsStore{itemTotals: storage.ItemTotals{Impressions: 3, Clicks: 1}}
	svc := newTestService(store)

	resp, err := svc.ItemStats(context.Background(), ItemStatsRequest{ItemID: "item-1"})
	require.NoError(t, err)
	require.Equal(t, "33.33", resp.ClickThroughRate.String())
}

func TestItemStats_ZeroImpressionsMeansZeroRate(t *testing.T) {
	store := &fakeAnalyticsStore{itemTotals: storage.ItemTotals{Impressions: 0, Clicks: 3}}
	svc := newTestService(store)

	resp, err := svc.ItemStats(context.Background(), ItemStatsRequest{ItemID: "item-1"})
	require.NoError(t, err)
	require.True(t, resp.ClickThroughRate.IsZero())
}

func TestItemStats_FilterReachesTheStore(t *testing.T) {
	store := &fakeAnalyticsStore{}
	svc := newTestService(store)

	start := testNow.Add(-24 * time.Hour)
	_, err := svc.ItemStats(context.Background(), ItemStatsRequest{
		ItemID: "item-1",
		Start:  start,
		End:    testNow,
		Source: v1.SourceBrowse,
	})
	require.NoError(t, err)

	require.Equal(t, "item-1", store.lastFilter.ItemID)
	require.Equal(t, start, store.lastFilter.Start)
	require.Equal(t, testNow, store.lastFilter.End)
	require.Equal(t, v1.SourceBrowse, store.lastFilter.Source)
}

func TestItemStats_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  ItemStatsRequest
	}{
		{
			name: "missing item id",
			req:  ItemStatsRequest{},
		},
		{
			name: "end before start",
			req: ItemStatsRequest{
				ItemID: "item-1",
				Start:  testNow,
				End:    testNow.Add(-time.Hour),
			},
		},
		{
			name: "unknown source",
			req:  ItemStatsRequest{ItemID: "item-1", Source: "carrier-pigeon"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeAnalyticsStore{}
			svc := newTestService(store)

			_, err := svc.ItemStats(context.Background(), tc.req)
			require.ErrorIs(t, err, ErrInvalidQuery)
			require.Zero(t, store.calls, "invalid queries must fail before the store")
		})
	}
}

func TestTrending_RanksByImpressionsWithStableTies(t *testing.T) {
	store := &fakeAnalyticsStore{topItems: []storage.ItemTotals{
		{ItemID: "item-c", Impressions: 3, UniqueUsers: 1, UniqueSessions: 2},
		{ItemID: "item-b", Impressions: 5, UniqueUsers: 2, UniqueSessions: 4},
		{ItemID: "item-a", Impressions: 5, UniqueUsers: 3, UniqueSessions: 5},
	}}
	svc := newTestService(store)

	resp, err := svc.Trending(context.Background(), TrendingRequest{Limit: 2})
	require.NoError(t, err)

	// item-a and item-b tie on impressions; item id breaks the tie.
	require.Equal(t, []TrendingItem{
		{ItemID: "item-a", Impressions: 5, UniqueUsers: 3, UniqueSessions: 5},
		{ItemID: "item-b", Impressions: 5, UniqueUsers: 2, UniqueSessions: 4},
	}, resp.Items)
}

func TestTrending_LimitDefaultsAndClamps(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		wantLimit int
	}{
		{name: "zero falls back to the default", requested: 0, wantLimit: defaultTrendingLimit},
		{name: "within bounds passes through", requested: 5, wantLimit: 5},
		{name: "above the cap clamps", requested: 500, wantLimit: 25},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeAnalyticsStore{}
			svc := NewService(store, Limits{MaxTrendingLimit: 25})

			_, err := svc.Trending(context.Background(), TrendingRequest{Limit: tc.requested})
			require.NoError(t, err)
			require.Equal(t, tc.wantLimit, store.lastLimit)
		})
	}
}

func TestTrending_NegativeLimitRejected(t *testing.T) {
	store := &fakeAnalyticsStore{}
	svc := newTestService(store)

	_, err := svc.Trending(context.Background(), TrendingRequest{Limit: -1})
	require.ErrorIs(t, err, ErrInvalidQuery)
	require.Zero(t, store.calls)
}

func TestTrending_EmptyScopeReturnsEmptyList(t *testing.T) {
	store := &fakeAnalyticsStore{}
	svc := newTestService(store)

	resp, err := svc.Trending(context.Background(), TrendingRequest{})
	require.NoError(t, err)
	require.NotNil(t, resp.Items)
	require.Empty(t, resp.Items)
}

func TestUserStats_ComputesDistinctItemCounts(t *testing.T) {
	store := &fakeAnalyticsStore{userTotals: storage.UserTotals{
		Impressions:  4,
		Clicks:       1,
		ViewedItems:  3,
		ClickedItems: 1,
	}}
	svc := newTestService(store)

	resp, err := svc.UserStats(context.Background(), UserStatsRequest{UserID: "user-9"})
	require.NoError(t, err)

	require.Equal(t, "user-9", resp.UserID)
	require.Equal(t, int64(4), resp.Impressions)
	require.Equal(t, int64(1), resp.Clicks)
	require.Equal(t, int64(3), resp.ViewedItemCount)
	require.Equal(t, int64(1), resp.ClickedItemCount)
	require.True(t, resp.ClickThroughRate.Equal(decimal.NewFromInt(25)),
		"want CTR 25, got %s", resp.ClickThroughRate)
	require.Equal(t, "user-9", store.lastFilter.UserID)
}

func TestUserStats_RequiresUserID(t *testing.T) {
	store := &fakeAnalyticsStore{}
	svc := newTestService(store)

	_, err := svc.UserStats(context.Background(), UserStatsRequest{})
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestTimeSeries_SplitsKindsIntoSparseSeries(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
	}
	store := &fakeAnalyticsStore{dailyCounts: []storage.DailyCount{
		{Day: day(1), Kind: v1.KindClick, Count: 1},
		{Day: day(1), Kind: v1.KindImpression, Count: 3},
		{Day: day(3), Kind: v1.KindImpression, Count: 2},
	}}
	svc := newTestService(store)

	resp, err := svc.TimeSeries(context.Background(), TimeSeriesRequest{ItemID: "item-1", Days: 7})
	require.NoError(t, err)

	// March 2nd had no events and is absent, not zero-filled.
	require.Equal(t, []DailyPoint{
		{Date: "2026-03-01", Count: 3},
		{Date: "2026-03-03", Count: 2},
	}, resp.Impressions)
	require.Equal(t, []DailyPoint{
		{Date: "2026-03-01", Count: 1},
	}, resp.Clicks)
}

func TestTimeSeries_EmptySeriesStayNonNil(t *testing.T) {
	store := &fakeAnalyticsStore{}
	svc := newTestService(store)

	resp, err := svc.TimeSeries(context.Background(), TimeSeriesRequest{ItemID: "item-1", Days: 7})
	require.NoError(t, err)

	// Both series marshal as [] rather than null.
	require.NotNil(t, resp.Impressions)
	require.NotNil(t, resp.Clicks)
	require.Empty(t, resp.Impressions)
	require.Empty(t, resp.Clicks)
}

func TestTimeSeries_DaysCountBackFromNow(t *testing.T) {
	store := &fakeAnalyticsStore{}
	svc := newTestService(store)

	_, err := svc.TimeSeries(context.Background(), TimeSeriesRequest{ItemID: "item-1", Days: 7})
	require.NoError(t, err)

	require.Equal(t, testNow, store.lastFilter.End)
	require.Equal(t, testNow.AddDate(0, 0, -7), store.lastFilter.Start)
}

func TestTimeSeries_ZeroDaysUsesDefaultRange(t *testing.T) {
	store := &fakeAnalyticsStore{}
	svc := NewService(store, Limits{DefaultRangeDays: 14})
	svc.nowFn = func() time.Time { return testNow }

	_, err := svc.TimeSeries(context.Background(), TimeSeriesRequest{ItemID: "item-1"})
	require.NoError(t, err)

	require.Equal(t, testNow.AddDate(0, 0, -14), store.lastFilter.Start)
}

func TestTimeSeries_ExplicitWindowWinsOverDays(t *testing.T) {
	store := &fakeAnalyticsStore{}
	svc := newTestService(store)

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	resp, err := svc.TimeSeries(context.Background(), TimeSeriesRequest{
		ItemID: "item-1",
		Days:   5,
		Start:  start,
		End:    end,
	})
	require.NoError(t, err)

	require.Equal(t, start, store.lastFilter.Start)
	require.Equal(t, end, store.lastFilter.End)
	require.Equal(t, start, resp.Start)
	require.Equal(t, end, resp.End)
}

func TestTimeSeries_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  TimeSeriesRequest
	}{
		{
			name: "missing item id",
			req:  TimeSeriesRequest{Days: 7},
		},
		{
			name: "negative days",
			req:  TimeSeriesRequest{ItemID: "item-1", Days: -1},
		},
		{
			name: "end before start",
			req: TimeSeriesRequest{
				ItemID: "item-1",
				Start:  testNow,
				End:    testNow.Add(-time.Hour),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeAnalyticsStore{}
			svc := newTestService(store)

			_, err := svc.TimeSeries(context.Background(), tc.req)
			require.ErrorIs(t, err, ErrInvalidQuery)
			require.Zero(t, store.calls)
		})
	}
}

func TestStoreFailuresPropagate(t *testing.T) {
	store := &fakeAnalyticsStore{
		err: fmt.Errorf("query events: %w", storage.ErrUnavailable),
	}
	svc := newTestService(store)
	ctx := context.Background()

	queries := map[string]func() error{
		"item stats": func() error {
			_, err := svc.ItemStats(ctx, ItemStatsRequest{ItemID: "item-1"})
			return err
		},
		"trending": func() error {
			_, err := svc.Trending(ctx, TrendingRequest{Limit: 5})
			return err
		},
		"user stats": func() error {
			_, err := svc.UserStats(ctx, UserStatsRequest{UserID: "user-9"})
			return err
		},
		"time series": func() error {
			_, err := svc.TimeSeries(ctx, TimeSeriesRequest{ItemID: "item-1", Days: 7})
			return err
		},
	}

	for name, query := range queries {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, query(), storage.ErrUnavailable)
		})
	}
}

func newTestService(store *fakeAnalyticsStore) *Service {
	svc := NewService(store, Limits{})
	svc.nowFn = func() time.Time { return testNow }
	return svc
}

// fakeAnalyticsStore returns canned aggregates and records the filter each
// query arrived with. TopItemsByImpressions applies the real store's ordering
// contract so ranking tests read like the SQL they stand in for.
type fakeAnalyticsStore struct {
	itemTotals  storage.ItemTotals
	userTotals  storage.UserTotals
	topItems    []storage.ItemTotals
	dailyCounts []storage.DailyCount
	err         error

	calls      int
	lastFilter storage.Filter
	lastLimit  int
}

func (f *fakeAnalyticsStore) ItemTotals(_ context.Context, filter storage.Filter) (storage.ItemTotals, error) {
	f.calls++
	f.lastFilter = filter
	if f.err != nil {
		return storage.ItemTotals{}, f.err
	}
	totals := f.itemTotals
	totals.ItemID = filter.ItemID
	return totals, nil
}

func (f *fakeAnalyticsStore) UserTotals(_ context.Context, filter storage.Filter) (storage.UserTotals, error) {
	f.calls++
	f.lastFilter = filter
	if f.err != nil {
		return storage.UserTotals{}, f.err
	}
	totals := f.userTotals
	totals.UserID = filter.UserID
	return totals, nil
}

func (f *fakeAnalyticsStore) TopItemsByImpressions(_ context.Context, filter storage.Filter, limit int) ([]storage.ItemTotals, error) {
	f.calls++
	f.lastFilter = filter
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}

	rows := append([]storage.ItemTotals(nil), f.topItems...)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Impressions != rows[j].Impressions {
			return rows[i].Impressions > rows[j].Impressions
		}
		return rows[i].ItemID < rows[j].ItemID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeAnalyticsStore) DailyCounts(_ context.Context, filter storage.Filter) ([]storage.DailyCount, error) {
	f.calls++
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.dailyCounts, nil
}
