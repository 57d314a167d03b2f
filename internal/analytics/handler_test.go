package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	v1 "github.com/itempulse/itempulse/internal/api/v1"
	httperr "github.com/itempulse/itempulse/internal/core/errors"
	"github.com/itempulse/itempulse/internal/core/storage"
)

func TestItemStatsHandler_OK(t *testing.T) {
	store := &fakeAnalyticsStore{itemTotals: storage.ItemTotals{
		Impressions:    10,
		Clicks:         2,
		UniqueUsers:    4,
		UniqueSessions: 7,
	}}
	r := newTestRouter(newTestService(store))

	resp := get(t, r, "/v1/items/item-1/stats")
	require.Equal(t, http.StatusOK, resp.Code)

	var body ItemStatsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "item-1", body.ItemID)
	require.Equal(t, int64(10), body.Impressions)
	require.True(t, body.ClickThroughRate.Equal(decimal.NewFromInt(20)),
		"want CTR 20, got %s", body.ClickThroughRate)
}

func TestItemStatsHandler_ForwardsWindowAndSource(t *testing.T) {
	store := &fakeAnalyticsStore{}
	r := newTestRouter(newTestService(store))

	resp := get(t, r, "/v1/items/item-1/stats?start=2026-03-01T00:00:00Z&end=2026-03-08T00:00:00Z&source=browse")
	require.Equal(t, http.StatusOK, resp.Code)

	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), store.lastFilter.Start)
	require.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), store.lastFilter.End)
	require.Equal(t, v1.SourceBrowse, store.lastFilter.Source)
}

func TestItemStatsHandler_MalformedTimeRejected(t *testing.T) {
	store := &fakeAnalyticsStore{}
	r := newTestRouter(newTestService(store))

	resp := get(t, r, "/v1/items/item-1/stats?start=yesterday")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Zero(t, store.calls)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidQueryError, errResp.ErrorType)
}

func TestItemStatsHandler_InvalidSourceRejected(t *testing.T) {
	store := &fakeAnalyticsStore{}
	r := newTestRouter(newTestService(store))

	resp := get(t, r, "/v1/items/item-1/stats?source=carrier-pigeon")
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidQueryError, errResp.ErrorType)
	require.Equal(t, msgInvalidQuery, errResp.Message)
}

func TestTrendingHandler_OK(t *testing.T) {
	store := &fakeAnalyticsStore{topItems: []storage.ItemTotals{
		{ItemID: "item-c", Impressions: 3},
		{ItemID: "item-b", Impressions: 5},
		{ItemID: "item-a", Impressions: 5},
	}}
	r := newTestRouter(newTestService(store))

	resp := get(t, r, "/v1/trending?limit=2")
	require.Equal(t, http.StatusOK, resp.Code)

	var body TrendingResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	require.Equal(t, "item-a", body.Items[0].ItemID)
	require.Equal(t, "item-b", body.Items[1].ItemID)
}

func TestTrendingHandler_MalformedLimitRejected(t *testing.T) {
	store := &fakeAnalyticsStore{}
	r := newTestRouter(newTestService(store))

	resp := get(t, r, "/v1/trending?limit=lots")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Zero(t, store.calls)
}

func TestUserStatsHandler_OK(t *testing.T) {
	store := &fakeAnalyticsStore{userTotals: storage.UserTotals{
		Impressions:  4,
		Clicks:       1,
		ViewedItems:  3,
		ClickedItems: 1,
	}}
	r := newTestRouter(newTestService(store))

	resp := get(t, r, "/v1/users/user-9/stats")
	require.Equal(t, http.StatusOK, resp.Code)

	var body UserStatsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "user-9", body.UserID)
	require.Equal(t, int64(3), body.ViewedItemCount)
	require.True(t, body.ClickThroughRate.Equal(decimal.NewFromInt(25)),
		"want CTR 25, got %s", body.ClickThroughRate)
}

func TestTimeSeriesHandler_OK(t *testing.T) {
	store := &fakeAnalyticsStore{dailyCounts: []storage.DailyCount{
		{Day: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Kind: v1.KindImpression, Count: 3},
		{Day: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), Kind: v1.KindClick, Count: 1},
	}}
	r := newTestRouter(newTestService(store))

	resp := get(t, r, "/v1/items/item-1/timeseries?days=7")
	require.Equal(t, http.StatusOK, resp.Code)

	var body TimeSeriesResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, []DailyPoint{{Date: "2026-03-01", Count: 3}}, body.Impressions)
	require.Equal(t, []DailyPoint{{Date: "2026-03-03", Count: 1}}, body.Clicks)
}

func TestTimeSeriesHandler_MalformedDaysRejected(t *testing.T) {
	store := &fakeAnalyticsStore{}
	r := newTestRouter(newTestService(store))

	resp := get(t, r, "/v1/items/item-1/timeseries?days=week")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Zero(t, store.calls)
}

func TestAnalyticsHandlers_StoreUnavailable(t *testing.T) {
	store := &fakeAnalyticsStore{
		err: fmt.Errorf("query events: %w", storage.ErrUnavailable),
	}
	r := newTestRouter(newTestService(store))

	resp := get(t, r, "/v1/items/item-1/stats")
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpStoreUnavailableErr, errResp.ErrorType)
}

func TestAnalyticsHandlers_UnexpectedErrorIsInternal(t *testing.T) {
	store := &fakeAnalyticsStore{err: errors.New("scan failed")}
	r := newTestRouter(newTestService(store))

	resp := get(t, r, "/v1/trending")
	require.Equal(t, http.StatusInternalServerError, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInternalError, errResp.ErrorType)
}

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func get(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}
