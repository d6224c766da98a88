package security

import (
	"context"

	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
	"github.com/sitegate/gatekeeper/internal/logger"
)

// MetricsAdapter is how validators report what they saw: security events
// go to the sink, counters go to the metrics backend. Either may be nil.
type MetricsAdapter struct {
	metrics ports.SecurityMetrics
	sink    ports.SecurityEventSink
	logger  *logger.StyledLogger
}

func NewSecurityMetricsAdapter(metrics ports.SecurityMetrics, sink ports.SecurityEventSink, logger *logger.StyledLogger) *MetricsAdapter {
	return &MetricsAdapter{
		metrics: metrics,
		sink:    sink,
		logger:  logger,
	}
}

func (sma *MetricsAdapter) Emit(ctx context.Context, event domain.SecurityEvent) {
	if sma == nil || sma.sink == nil {
		return
	}
	sma.sink.Emit(ctx, event)
}

func (sma *MetricsAdapter) RecordRateLimit(class domain.LimitClass, limited bool) {
	if sma == nil || sma.metrics == nil {
		return
	}
	sma.metrics.RecordRateLimit(class, limited)
}

func (sma *MetricsAdapter) RecordStoreError(ctx context.Context, backend string, err error, apiCtx *domain.ApiContext, class domain.LimitClass) {
	if sma == nil {
		return
	}
	if sma.metrics != nil {
		sma.metrics.RecordStoreError(backend)
	}
	if sma.logger != nil {
		sma.logger.Warn("Counter store failed, admitting request",
			"backend", backend,
			"limit_class", class,
			"error", err)
	}
	sma.Emit(ctx, domain.NewSecurityEvent(domain.EventStoreFailure, domain.SeverityHigh, apiCtx, map[string]any{
		"backend":    backend,
		"limitClass": string(class),
		"error":      err.Error(),
	}))
}

func (sma *MetricsAdapter) RecordViolation(violation domain.WAFViolation) {
	if sma == nil || sma.metrics == nil {
		return
	}
	sma.metrics.RecordViolation(violation)
}
