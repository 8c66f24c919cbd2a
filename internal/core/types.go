package core

import "time"

// DenyReason classifies why an admission check rejected an identity.
type DenyReason string

const (
	DenyReputation  DenyReason = "reputation_denied"
	DenyRateLimited DenyReason = "rate_limited"
)

// Decision is the combined admission verdict for one request identity.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     DenyReason    `json:"reason,omitempty"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// RetryAfterSeconds reports the retry hint rounded up to whole seconds,
// suitable for a Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Origin is the geographic origin of a request, when the caller knows it.
type Origin struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
