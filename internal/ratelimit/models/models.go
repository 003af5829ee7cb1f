package models

import "time"

// Limit is a request budget over a sliding window.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, set when not allowed
}

// NewResult derives Remaining and RetryAfter from the window position.
func NewResult(allowed bool, limit, used int, resetAt, now time.Time) *Result {
	r := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: max(limit-used, 0),
		ResetAt:   resetAt,
	}
	if !allowed {
		wait := resetAt.Sub(now)
		secs := int((wait + time.Second - 1) / time.Second)
		r.RetryAfter = max(secs, 1)
	}
	return r
}

// RequestCreationKey buckets verification request creation per verifier.
func RequestCreationKey(verifierID string) string {
	return "rl:requests:" + verifierID
}

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
