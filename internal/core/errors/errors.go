package errors

const (
	HttpInternalError        = "internal_error"
	HttpInvalidJsonError     = "invalid_json"
	HttpInvalidInputError    = "invalid_input"
	HttpRateLimitedError     = "rate_limited"
	HttpDuplicateEventError  = "duplicate_event"
	HttpStoreUnavailableErr  = "store_unavailable"
	HttpInvalidQueryError    = "invalid_query"
	HttpPayloadTooLargeError = "payload_too_large"
)

// ErrorResponse is the error response body for ingestion and analytics errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
