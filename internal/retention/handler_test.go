package retention

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	v1 "github.com/itempulse/itempulse/internal/api/v1"
)

func TestHandlePurge_ReportsDeletions(t *testing.T) {
	s, _, events, ledger := newTestSweeper(t, Config{RetentionPeriod: 30 * 24 * time.Hour})
	events.deleted = map[string]int64{v1.KindImpression: 9, v1.KindClick: 4}
	ledger.purged = 2

	gin.SetMode(gin.TestMode)
	r := gin.New()
	s.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/purge", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var report PurgeReport
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &report))
	require.Equal(t, int64(9), report.EventsDeleted[v1.KindImpression])
	require.Equal(t, int64(4), report.EventsDeleted[v1.KindClick])
	require.Equal(t, int64(2), report.LedgerEntriesDeleted)
	require.Equal(t, testNow.Add(-30*24*time.Hour), report.Cutoff.UTC())
}
