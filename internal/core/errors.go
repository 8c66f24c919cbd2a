package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrBreakerOpen reports that the circuit breaker refused a call without
// invoking the protected operation.
var ErrBreakerOpen = errors.New("circuit breaker open")

// ErrNoHealthyBackend reports that every backend target is currently
// excluded from selection.
var ErrNoHealthyBackend = errors.New("no healthy backend available")

// AdmissionError is a denied admission together with its retry hint.
type AdmissionError struct {
	ClientID   string
	Reason     DenyReason
	RetryAfter time.Duration
}

func (e *AdmissionError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("admission denied for %q: %s (retry after %s)", e.ClientID, e.Reason, e.RetryAfter)
	}
	return fmt.Sprintf("admission denied for %q: %s", e.ClientID, e.Reason)
}

// Decision converts the error back into the equivalent denial verdict.
func (e *AdmissionError) Decision(now time.Time) Decision {
	return Decision{
		Allowed:    false,
		Reason:     e.Reason,
		RetryAfter: e.RetryAfter,
		CheckedAt:  now,
	}
}
