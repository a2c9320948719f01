// Package models defines the rate limiting result types shared by the
// stores and the HTTP middleware.
package models

import "time"

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int
}

// ExceededResponse is the wire form returned when a caller is throttled.
type ExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}
