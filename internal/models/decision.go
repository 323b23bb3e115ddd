package models

import "time"

// DenialReason explains why a check did not allow the request to proceed.
type DenialReason string

const (
	DenialLockedOut   DenialReason = "locked_out"
	DenialRateLimited DenialReason = "rate_limited"
)

// Decision is the typed result of an advisory security check. Denials are
// not errors; the caller maps them to its own response (HTTP 423/429, etc).
type Decision struct {
	Allowed    bool
	Reason     DenialReason
	RetryAfter time.Duration
	// Degraded is set when the backing store was unreachable and the
	// configured fail-open policy produced this decision instead of a real
	// check. The infrastructure error is logged separately.
	Degraded bool
}

// Allow returns the affirmative decision.
func Allow() *Decision {
	return &Decision{Allowed: true}
}

// Deny returns a denial with a reason and retry hint.
func Deny(reason DenialReason, retryAfter time.Duration) *Decision {
	return &Decision{Allowed: false, Reason: reason, RetryAfter: retryAfter}
}

// ThrottleDecision is the result of a progressive-escalation evaluation.
type ThrottleDecision struct {
	Allowed    bool
	Tier       string
	Ceiling    int64
	Window     time.Duration
	Violations int64
	Attempts   int64
	RetryAfter time.Duration
}
