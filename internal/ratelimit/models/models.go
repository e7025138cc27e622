// Package models describes rate limit classes and decisions.
package models

import (
	"strings"
	"time"
)

// EndpointClass groups routes that share a limit.
type EndpointClass string

const (
	ClassWrite EndpointClass = "write"
	ClassBulk  EndpointClass = "bulk"
)

func (c EndpointClass) IsValid() bool {
	return c == ClassWrite || c == ClassBulk
}

// Limit is a request budget per window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one check. ResetAt is when the oldest counted
// request leaves the window.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long a rejected caller should wait.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// SanitizeKeySegment escapes the key delimiter so a caller-controlled value
// cannot spill into an adjacent segment. DIDs contain ':' so this matters.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// Key builds the bucket key for a caller within a class.
func Key(class EndpointClass, kind, identifier string) string {
	return "ratelimit:" + string(class) + ":" + kind + ":" + SanitizeKeySegment(identifier)
}
