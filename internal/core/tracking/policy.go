package tracking

import (
	"fmt"
	"time"

	v1 "github.com/itempulse/itempulse/internal/api/v1"
)

// Default policy values, applied when configuration leaves a knob unset.
const (
	DefaultRateLimitWindow    = 60 * time.Second
	DefaultImpressionCooldown = 30 * time.Second
	DefaultClickCooldown      = 5 * time.Second
)

// Policy is the acceptance rule for repeated events on one deduplication
// key. A new event is accepted only when the gap since the last accepted
// event satisfies BOTH the kind-specific cooldown and the rate-limit window;
// Gate collapses the pair into the single threshold a store lookup needs.
type Policy struct {
	// RateLimitWindow is the minimum spacing between any two accepted
	// events on the same key, regardless of kind-specific cooldowns.
	RateLimitWindow time.Duration

	// ImpressionCooldown is the minimum gap between accepted impressions.
	ImpressionCooldown time.Duration

	// ClickCooldown is the minimum gap between accepted clicks.
	ClickCooldown time.Duration
}

// Normalized returns a copy with zero or negative durations replaced by the
// defaults.
func (p Policy) Normalized() Policy {
	if p.RateLimitWindow <= 0 {
		p.RateLimitWindow = DefaultRateLimitWindow
	}
	if p.ImpressionCooldown <= 0 {
		p.ImpressionCooldown = DefaultImpressionCooldown
	}
	if p.ClickCooldown <= 0 {
		p.ClickCooldown = DefaultClickCooldown
	}
	return p
}

// Validate rejects policies that would let duplicate events through.
func (p Policy) Validate() error {
	if p.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %v", p.RateLimitWindow)
	}
	if p.ImpressionCooldown <= 0 {
		return fmt.Errorf("impression cooldown must be positive, got %v", p.ImpressionCooldown)
	}
	if p.ClickCooldown <= 0 {
		return fmt.Errorf("click cooldown must be positive, got %v", p.ClickCooldown)
	}
	return nil
}

// CooldownFor returns the kind-specific cooldown. Unknown kinds get the
// longest cooldown so a misrouted event can never bypass the policy.
func (p Policy) CooldownFor(kind string) time.Duration {
	switch kind {
	case v1.KindImpression:
		return p.ImpressionCooldown
	case v1.KindClick:
		return p.ClickCooldown
	}
	if p.ImpressionCooldown > p.ClickCooldown {
		return p.ImpressionCooldown
	}
	return p.ClickCooldown
}

// Gate returns the full acceptance threshold for a kind: the gap since the
// prior accepted event must be at least this long. Both the cooldown and the
// rate-limit window apply, so the gate is whichever is larger.
func (p Policy) Gate(kind string) time.Duration {
	cooldown := p.CooldownFor(kind)
	if cooldown > p.RateLimitWindow {
		return cooldown
	}
	return p.RateLimitWindow
}

// MaxGate returns the largest gate across all kinds. Bulk ledger lookups and
// ledger garbage collection use it as their horizon: an entry older than
// MaxGate can no longer block anything.
func (p Policy) MaxGate() time.Duration {
	max := p.RateLimitWindow
	for _, kind := range v1.Kinds() {
		if g := p.Gate(kind); g > max {
			max = g
		}
	}
	return max
}

// Classify names the rejection for an event whose key has a prior acceptance
// at prior. Inside the kind cooldown the event is rate-limited; past the
// cooldown but still inside the rate-limit window it is a duplicate. Callers
// invoke it only after the store refused the write, so one of the two always
// applies; duplicate is the fallback when clock skew puts the gap past the
// gate anyway.
func (p Policy) Classify(kind string, prior, now time.Time) RejectReason {
	gap := now.Sub(prior)
	if gap < p.CooldownFor(kind) {
		return ReasonRateLimited
	}
	return ReasonDuplicate
}
