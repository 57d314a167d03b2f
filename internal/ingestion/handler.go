package ingestion

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	v1 "github.com/itempulse/itempulse/internal/api/v1"
	httperr "github.com/itempulse/itempulse/internal/core/errors"
	"github.com/itempulse/itempulse/internal/core/tracking"

	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed   = "Failed to read request body"
	msgInvalidJSON      = "Invalid JSON body"
	msgBodyTooLarge     = "Request body exceeds maximum allowed size"
	msgBatchTooLarge    = "Batch exceeds the maximum number of events"
	msgEventRequired    = "event payload is required"
	msgKeyBlocked       = "an event for this session and item was accepted too recently"
	msgStoreUnavailable = "event store is temporarily unavailable"
)

// batchRequest is the wire shape of POST /v1/events/batch.
type batchRequest struct {
	Events []*v1.Event `json:"events"`
}

// batchResponse mirrors the input order: Results[i] answers Events[i].
type batchResponse struct {
	Results  []tracking.Result `json:"results"`
	Accepted int               `json:"accepted"`
	Rejected int               `json:"rejected"`
}

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// SubmitHandler handles HTTP POST requests for single event submission.
func (s *Service) SubmitHandler(c *gin.Context) {
	var evt v1.Event
	payloadSize, ierr := s.bindBody(c, &evt)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	slog.Info("Received event",
		"event_kind", evt.Kind,
		"item_id", evt.ItemID,
		"session_id", evt.SessionID,
		"payload_size", payloadSize)

	result := s.Submit(c.Request.Context(), &evt)
	if !result.IsAccepted() {
		writeRejection(c, result)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// SubmitBatchHandler handles HTTP POST requests for batch event submission.
func (s *Service) SubmitBatchHandler(c *gin.Context) {
	var req batchRequest
	payloadSize, ierr := s.bindBody(c, &req)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	if len(req.Events) > s.maxBatchSize {
		slog.Warn("Batch exceeds maximum size", "events", len(req.Events), "max", s.maxBatchSize)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidInputError,
			message:    msgBatchTooLarge,
			details: map[string]interface{}{
				"max_batch_size": s.maxBatchSize,
				"got":            len(req.Events),
			},
		})
		return
	}

	slog.Info("Received batch", "events", len(req.Events), "payload_size", payloadSize)

	results := s.SubmitBatch(c.Request.Context(), req.Events)

	resp := batchResponse{Results: results}
	for _, res := range results {
		if res.IsAccepted() {
			resp.Accepted++
		} else {
			resp.Rejected++
		}
	}

	// Partial failure is the normal batch shape; per-event outcomes live in
	// the results, so the envelope is always 200.
	c.JSON(http.StatusOK, resp)
}

// bindBody reads the size-capped request body and binds it as JSON into out.
// Returns the raw payload size (used for structured logging upstream).
func (s *Service) bindBody(c *gin.Context, out interface{}) (int, *ingestionError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpPayloadTooLargeError,
			message:    msgBodyTooLarge,
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	if err := c.ShouldBindJSON(out); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	return len(bodyBytes), nil
}

// writeRejection maps a typed rejection onto its HTTP status.
func writeRejection(c *gin.Context, result tracking.Result) {
	status := http.StatusBadRequest
	errorType := httperr.HttpInvalidInputError

	switch result.Reason {
	case tracking.ReasonRateLimited:
		status = http.StatusTooManyRequests
		errorType = httperr.HttpRateLimitedError
	case tracking.ReasonDuplicate:
		status = http.StatusConflict
		errorType = httperr.HttpDuplicateEventError
	case tracking.ReasonStoreUnavailable:
		status = http.StatusServiceUnavailable
		errorType = httperr.HttpStoreUnavailableErr
	}

	c.JSON(status, httperr.ErrorResponse{
		ErrorType: errorType,
		Message:   result.Detail,
		Details:   map[string]interface{}{"reason": result.Reason},
	})
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
