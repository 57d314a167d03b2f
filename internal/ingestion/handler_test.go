package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	v1 "github.com/itempulse/itempulse/internal/api/v1"
	httperr "github.com/itempulse/itempulse/internal/core/errors"
	"github.com/itempulse/itempulse/internal/core/storage"
	"github.com/itempulse/itempulse/internal/core/tracking"
)

func TestSubmitHandler_Accepted(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	r := newTestRouter(svc)

	resp := postJSON(t, r, "/v1/events", impression("item-1", "sess-1"))
	require.Equal(t, http.StatusAccepted, resp.Code)

	var result tracking.Result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, tracking.StatusAccepted, result.Status)
	require.NotEmpty(t, result.Event.ID)
	require.False(t, result.Event.IngestedAt.IsZero())
}

func TestSubmitHandler_InvalidJSON(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	r := newTestRouter(svc)

	resp := postRaw(t, r, "/v1/events", []byte("not json"))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidJsonError, errResp.ErrorType)
}

func TestSubmitHandler_MalformedTimestamp(t *testing.T) {
	svc, _, store, _ := newTestService(t)
	r := newTestRouter(svc)

	// An unparseable timestamp is a rejection, never a silent default.
	body := []byte(`{"event_kind":"impression","item_id":"item-1","session_id":"sess-1","source":"browse","timestamp":"yesterday-ish"}`)
	resp := postRaw(t, r, "/v1/events", body)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Empty(t, store.events)
}

func TestSubmitHandler_ValidationFailure(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	r := newTestRouter(svc)

	evt := impression("", "sess-1")
	resp := postJSON(t, r, "/v1/events", evt)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidInputError, errResp.ErrorType)
	require.Contains(t, errResp.Message, "item_id")
}

func TestSubmitHandler_RateLimited(t *testing.T) {
	svc, _, _, clk := newTestService(t)
	r := newTestRouter(svc)

	resp := postJSON(t, r, "/v1/events", impression("item-1", "sess-1"))
	require.Equal(t, http.StatusAccepted, resp.Code)

	clk.Advance(10 * time.Second)
	resp = postJSON(t, r, "/v1/events", impression("item-1", "sess-1"))
	require.Equal(t, http.StatusTooManyRequests, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpRateLimitedError, errResp.ErrorType)
}

func TestSubmitHandler_Duplicate(t *testing.T) {
	svc, _, _, clk := newTestService(t)
	r := newTestRouter(svc)

	resp := postJSON(t, r, "/v1/events", impression("item-1", "sess-1"))
	require.Equal(t, http.StatusAccepted, resp.Code)

	clk.Advance(31 * time.Second)
	resp = postJSON(t, r, "/v1/events", impression("item-1", "sess-1"))
	require.Equal(t, http.StatusConflict, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpDuplicateEventError, errResp.ErrorType)
}

func TestSubmitHandler_StoreUnavailable(t *testing.T) {
	svc, ledger, _, _ := newTestService(t)
	r := newTestRouter(svc)

	ledger.tryAcceptErr = fmt.Errorf("try_accept: %w: connection refused", storage.ErrUnavailable)

	resp := postJSON(t, r, "/v1/events", impression("item-1", "sess-1"))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpStoreUnavailableErr, errResp.ErrorType)
}

func TestSubmitHandler_BodySizeLimit(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.maxBodySizeBytes = 10 // Very small limit
	r := newTestRouter(svc)

	resp := postJSON(t, r, "/v1/events", impression("item-1", "sess-1"))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpPayloadTooLargeError, errResp.ErrorType)
	require.Contains(t, errResp.Message, "maximum allowed size")
}

func TestSubmitBatchHandler_MixedResults(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	r := newTestRouter(svc)

	bad := impression("item-2", "sess-1")
	bad.Source = "carrier-pigeon"

	resp := postJSON(t, r, "/v1/events/batch", batchRequest{
		Events: []*v1.Event{
			impression("item-1", "sess-1"),
			impression("item-1", "sess-1"),
			bad,
		},
	})
	require.Equal(t, http.StatusOK, resp.Code)

	var body batchResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Results, 3)
	require.Equal(t, 1, body.Accepted)
	require.Equal(t, 2, body.Rejected)

	require.True(t, body.Results[0].IsAccepted())
	require.Equal(t, tracking.ReasonRateLimited, body.Results[1].Reason)
	require.Equal(t, tracking.ReasonInvalidInput, body.Results[2].Reason)
}

func TestSubmitBatchHandler_EmptyBatch(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	r := newTestRouter(svc)

	resp := postJSON(t, r, "/v1/events/batch", batchRequest{})
	require.Equal(t, http.StatusOK, resp.Code)

	var body batchResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Empty(t, body.Results)
	require.Zero(t, body.Accepted)
	require.Zero(t, body.Rejected)
}

func TestSubmitBatchHandler_TooManyEvents(t *testing.T) {
	svc, ledger, _, _ := newTestService(t)
	svc.maxBatchSize = 2
	r := newTestRouter(svc)

	resp := postJSON(t, r, "/v1/events/batch", batchRequest{
		Events: []*v1.Event{
			impression("item-1", "sess-1"),
			impression("item-2", "sess-1"),
			impression("item-3", "sess-1"),
		},
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidInputError, errResp.ErrorType)
	require.Contains(t, errResp.Message, "maximum number of events")
	require.Zero(t, ledger.tryAcceptCalls, "an oversized batch must be refused before any decisions")
}

func TestSubmitBatchHandler_InvalidJSON(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	r := newTestRouter(svc)

	resp := postRaw(t, r, "/v1/events/batch", []byte("{"))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidJsonError, errResp.ErrorType)
}

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return postRaw(t, r, path, raw)
}

func postRaw(t *testing.T, r *gin.Engine, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}
