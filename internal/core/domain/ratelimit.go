package domain

import (
	"net/http"
	"time"
)

type LimitClass string

const (
	LimitClassAuth      LimitClass = "auth"
	LimitClassRead      LimitClass = "read"
	LimitClassWrite     LimitClass = "write"
	LimitClassUpload    LimitClass = "upload"
	LimitClassAdmin     LimitClass = "admin"
	LimitClassAnalytics LimitClass = "analytics"
	LimitClassDefault   LimitClass = "default"
)

// AllLimitClasses is ordered the way the classes are documented and logged.
var AllLimitClasses = []LimitClass{
	LimitClassAuth,
	LimitClassRead,
	LimitClassWrite,
	LimitClassUpload,
	LimitClassAdmin,
	LimitClassAnalytics,
	LimitClassDefault,
}

func (c LimitClass) IsValid() bool {
	for _, known := range AllLimitClasses {
		if c == known {
			return true
		}
	}
	return false
}

// LimitPolicy is the immutable budget attached to a LimitClass.
type LimitPolicy struct {
	Message     string
	Window      time.Duration
	MaxRequests int
	HTTPStatus  int
}

// DefaultLimitPolicies returns a fresh copy of the built-in class table.
func DefaultLimitPolicies() map[LimitClass]LimitPolicy {
	return map[LimitClass]LimitPolicy{
		LimitClassAuth: {
			Window:      15 * time.Minute,
			MaxRequests: 5,
			Message:     "Too many authentication attempts, please try again in 15 minutes",
			HTTPStatus:  http.StatusTooManyRequests,
		},
		LimitClassRead: {
			Window:      time.Minute,
			MaxRequests: 100,
			Message:     "Too many read requests, please slow down",
			HTTPStatus:  http.StatusTooManyRequests,
		},
		LimitClassWrite: {
			Window:      time.Minute,
			MaxRequests: 30,
			Message:     "Too many write requests, please slow down",
			HTTPStatus:  http.StatusTooManyRequests,
		},
		LimitClassUpload: {
			Window:      time.Hour,
			MaxRequests: 20,
			Message:     "Upload limit reached, please try again later",
			HTTPStatus:  http.StatusTooManyRequests,
		},
		LimitClassAdmin: {
			Window:      time.Minute,
			MaxRequests: 30,
			Message:     "Too many administrative requests",
			HTTPStatus:  http.StatusTooManyRequests,
		},
		LimitClassAnalytics: {
			Window:      time.Minute,
			MaxRequests: 20,
			Message:     "Too many report requests, please try again shortly",
			HTTPStatus:  http.StatusTooManyRequests,
		},
		LimitClassDefault: {
			Window:      time.Minute,
			MaxRequests: 60,
			Message:     "Too many requests, please try again later",
			HTTPStatus:  http.StatusTooManyRequests,
		},
	}
}

// RateLimitRecord is one fixed-window bucket. Count only grows while
// now <= WindowResetAt; the next increment after that starts a new window.
type RateLimitRecord struct {
	WindowResetAt time.Time
	Key           string
	Count         int64
}

func (r RateLimitRecord) Expired(now time.Time) bool {
	return now.After(r.WindowResetAt)
}

// RateLimitResult is the admission decision for a single request.
// RetryAfter is in whole seconds and only set when Limited is true.
// Degraded marks a fail-open answer produced while the store was failing.
type RateLimitResult struct {
	ResetAt    time.Time
	Class      LimitClass
	Message    string
	Limit      int
	Remaining  int
	RetryAfter int
	Limited    bool
	Degraded   bool
}
