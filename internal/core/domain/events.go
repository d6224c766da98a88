package domain

import "time"

type SecurityEventType string

const (
	EventRateLimitExceeded SecurityEventType = "rate_limit_exceeded"
	EventStoreFailure      SecurityEventType = "rate_limit_store_failure"
	EventWAFViolation      SecurityEventType = "waf_violation"
	EventWAFBlocked        SecurityEventType = "waf_blocked"
	EventInvalidSignature  SecurityEventType = "invalid_signature"
	EventUnauthorized      SecurityEventType = "unauthorized"
	EventForbidden         SecurityEventType = "forbidden"
	EventRequestTooLarge   SecurityEventType = "request_too_large"
	EventValidationFailed  SecurityEventType = "validation_failed"
	EventInternalError     SecurityEventType = "internal_error"
	EventAPIAccess         SecurityEventType = "api_access"
)

// SecurityEvent is a write-only audit record. The gateway never reads them back.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]any    `json:"details,omitempty"`
	Type      SecurityEventType `json:"type"`
	Severity  Severity          `json:"severity"`
	IP        string            `json:"ip"`
	UserAgent string            `json:"userAgent"`
	RequestID string            `json:"requestId,omitempty"`
}

// NewSecurityEvent stamps the event with the caller identity from ctx.
func NewSecurityEvent(eventType SecurityEventType, severity Severity, ctx *ApiContext, details map[string]any) SecurityEvent {
	ev := SecurityEvent{
		Type:      eventType,
		Severity:  severity,
		Timestamp: time.Now(),
		Details:   details,
	}
	if ctx != nil {
		ev.IP = ctx.IP
		ev.UserAgent = ctx.UserAgent
		ev.RequestID = ctx.RequestID
	}
	return ev
}
