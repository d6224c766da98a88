package ports

import (
	"context"
	"time"

	"github.com/sitegate/gatekeeper/internal/core/domain"
)

// SecurityEventSink receives audit records. Emit must not block the request.
type SecurityEventSink interface {
	Emit(ctx context.Context, event domain.SecurityEvent)
}

type SecurityMetrics interface {
	RecordRateLimit(class domain.LimitClass, limited bool)
	RecordStoreError(backend string)
	RecordViolation(violation domain.WAFViolation)
	RecordRejection(stage string, code domain.ErrorCode)
	RecordRequest(route string, status int, duration time.Duration)
}

// SecurityStats is the snapshot served by the internal stats endpoint.
type SecurityStats struct {
	EventsByType  map[string]int64       `json:"events_by_type"`
	RecentEvents  []domain.SecurityEvent `json:"recent_events"`
	TotalEvents   int64                  `json:"total_events"`
	DroppedEvents uint64                 `json:"dropped_events"`
	Subscribers   int                    `json:"subscribers"`
}

type SecurityStatsProvider interface {
	Stats() SecurityStats
}
