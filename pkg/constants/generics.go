// Package constants holds defaults shared by config and the waitlist domain.
package constants

import "time"

// Router-wide rate limit applied when no controller or handler overrides it.
const (
	DefaultRateLimitRequests = 100
	DefaultRateLimitWindow   = time.Minute
)

// WaitlistSubmissionsPerMinute caps form posts per client IP.
const WaitlistSubmissionsPerMinute = 30

// DefaultReferrer is stored when a submission arrives without attribution.
const DefaultReferrer = "Direct"

// DefaultMinHumanScore is the lowest reCAPTCHA v3 score accepted as human.
const DefaultMinHumanScore = 0.5
