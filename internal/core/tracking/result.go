package tracking

import (
	v1 "github.com/itempulse/itempulse/internal/api/v1"
)

// Result statuses.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// RejectReason names why an event was not persisted. Rejections are normal
// outcomes, not errors: callers branch on the reason, they never unwrap it.
type RejectReason string

const (
	// ReasonRateLimited marks an event inside the kind cooldown of the
	// prior acceptance on its key.
	ReasonRateLimited RejectReason = "rate_limited"

	// ReasonDuplicate marks an event past its cooldown but still inside
	// the rate-limit window, or a repeat of a key already accepted within
	// the same batch.
	ReasonDuplicate RejectReason = "duplicate"

	// ReasonInvalidInput marks an event that failed structural validation.
	ReasonInvalidInput RejectReason = "invalid_input"

	// ReasonStoreUnavailable marks an event that could not be decided
	// because the durable store did not answer.
	ReasonStoreUnavailable RejectReason = "store_unavailable"
)

// Result is the outcome of submitting one event. Batch submissions return a
// slice of Results positionally aligned with the input.
type Result struct {
	Status string `json:"status"`

	// Event is the persisted event, populated on acceptance only. It
	// carries the server-assigned id and timestamps.
	Event *v1.Event `json:"event,omitempty"`

	// Reason and Detail describe a rejection.
	Reason RejectReason `json:"reason,omitempty"`
	Detail string       `json:"detail,omitempty"`
}

// Accepted wraps a persisted event.
func Accepted(evt *v1.Event) Result {
	return Result{Status: StatusAccepted, Event: evt}
}

// Rejected builds a rejection outcome.
func Rejected(reason RejectReason, detail string) Result {
	return Result{Status: StatusRejected, Reason: reason, Detail: detail}
}

// IsAccepted reports whether the event was persisted.
func (r Result) IsAccepted() bool {
	return r.Status == StatusAccepted
}
