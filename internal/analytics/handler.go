package analytics

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	httperr "github.com/itempulse/itempulse/internal/core/errors"
	"github.com/itempulse/itempulse/internal/core/storage"
)

const (
	msgInvalidPath      = "Invalid path parameters"
	msgInvalidParams    = "Invalid query parameters"
	msgInvalidQuery     = "Invalid analytics query"
	msgStoreUnavailable = "Analytics store is unavailable"
)

// RegisterRoutes registers all analytics API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/items/:item_id/stats", s.HandleItemStats)
	r.GET("/v1/items/:item_id/timeseries", s.HandleTimeSeries)
	r.GET("/v1/trending", s.HandleTrending)
	r.GET("/v1/users/:user_id/stats", s.HandleUserStats)
}

// HandleItemStats handles GET /v1/items/:item_id/stats
// Query parameters: start, end, source
func (s *Service) HandleItemStats(c *gin.Context) {
	var uri struct {
		ItemID string `uri:"item_id" binding:"required"`
	}
	var query struct {
		Start  time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
		End    time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
		Source string    `form:"source"`
	}

	if err := c.ShouldBindUri(&uri); err != nil {
		writeBadRequest(c, msgInvalidPath, err)
		return
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, msgInvalidParams, err)
		return
	}

	resp, err := s.ItemStats(c.Request.Context(), ItemStatsRequest{
		ItemID: uri.ItemID,
		Start:  query.Start,
		End:    query.End,
		Source: query.Source,
	})
	if err != nil {
		writeQueryError(c, "Failed to query item stats", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleTrending handles GET /v1/trending
// Query parameters: limit, start, end, source
func (s *Service) HandleTrending(c *gin.Context) {
	var query struct {
		Limit  int       `form:"limit"`
		Start  time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
		End    time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
		Source string    `form:"source"`
	}

	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, msgInvalidParams, err)
		return
	}

	resp, err := s.Trending(c.Request.Context(), TrendingRequest{
		Limit:  query.Limit,
		Start:  query.Start,
		End:    query.End,
		Source: query.Source,
	})
	if err != nil {
		writeQueryError(c, "Failed to query trending items", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleUserStats handles GET /v1/users/:user_id/stats
// Query parameters: start, end, source
func (s *Service) HandleUserStats(c *gin.Context) {
	var uri struct {
		UserID string `uri:"user_id" binding:"required"`
	}
	var query struct {
		Start  time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
		End    time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
		Source string    `form:"source"`
	}

	if err := c.ShouldBindUri(&uri); err != nil {
		writeBadRequest(c, msgInvalidPath, err)
		return
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, msgInvalidParams, err)
		return
	}

	resp, err := s.UserStats(c.Request.Context(), UserStatsRequest{
		UserID: uri.UserID,
		Start:  query.Start,
		End:    query.End,
		Source: query.Source,
	})
	if err != nil {
		writeQueryError(c, "Failed to query user stats", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleTimeSeries handles GET /v1/items/:item_id/timeseries
// Query parameters: days, start, end
func (s *Service) HandleTimeSeries(c *gin.Context) {
	var uri struct {
		ItemID string `uri:"item_id" binding:"required"`
	}
	var query struct {
		Days  int       `form:"days"`
		Start time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
		End   time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
	}

	if err := c.ShouldBindUri(&uri); err != nil {
		writeBadRequest(c, msgInvalidPath, err)
		return
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, msgInvalidParams, err)
		return
	}

	resp, err := s.TimeSeries(c.Request.Context(), TimeSeriesRequest{
		ItemID: uri.ItemID,
		Days:   query.Days,
		Start:  query.Start,
		End:    query.End,
	})
	if err != nil {
		writeQueryError(c, "Failed to query time series", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func writeBadRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
		ErrorType: httperr.HttpInvalidQueryError,
		Message:   message,
		Details:   err.Error(),
	})
}

// writeQueryError maps a service error onto the response taxonomy: bad
// parameters are the caller's fault, a store outage is retryable, anything
// else is ours.
func writeQueryError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   msgInvalidQuery,
			Details:   err.Error(),
		})
	case errors.Is(err, storage.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
			ErrorType: httperr.HttpStoreUnavailableErr,
			Message:   msgStoreUnavailable,
			Details:   err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   message,
			Details:   err.Error(),
		})
	}
}
