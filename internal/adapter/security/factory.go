package security

import (
	"fmt"

	"github.com/sitegate/gatekeeper/internal/adapter/store"
	"github.com/sitegate/gatekeeper/internal/config"
	"github.com/sitegate/gatekeeper/internal/core/ports"
	"github.com/sitegate/gatekeeper/internal/logger"
)

type Adapters struct {
	Store         ports.CounterStore
	RateLimit     *RateLimiter
	UserRateLimit *UserRateLimitStage
	Size          *SizeValidator
	Signature     *SignatureValidator
	Headers       *HeaderPolicy
	Metrics       *MetricsAdapter
}

// NewSecurityServices builds the counter store and every validator that
// depends on it, so the gateway only has to put them in order.
func NewSecurityServices(cfg *config.Config, metrics ports.SecurityMetrics, sink ports.SecurityEventSink, logger *logger.StyledLogger) (*Adapters, error) {
	counterStore, err := store.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating counter store: %w", err)
	}
	return NewSecurityServicesWithStore(cfg, counterStore, metrics, sink, logger), nil
}

func NewSecurityServicesWithStore(cfg *config.Config, counterStore ports.CounterStore, metrics ports.SecurityMetrics, sink ports.SecurityEventSink, logger *logger.StyledLogger) *Adapters {
	metricsAdapter := NewSecurityMetricsAdapter(metrics, sink, logger)
	rateLimiter := NewRateLimiter(counterStore, cfg.LimitPolicies(), cfg.RateLimit.Paths, metricsAdapter, logger)

	var nonces ports.CounterStore
	if cfg.Signature.TrackNonces {
		nonces = counterStore
	}

	adapters := &Adapters{
		Store:     counterStore,
		RateLimit: rateLimiter,
		Size:      NewSizeValidator(cfg.Server.MaxBodyBytes, metricsAdapter, logger),
		Signature: NewSignatureValidator(cfg.Signature.Secret, cfg.Signature.Window, nonces, metricsAdapter, logger),
		Headers:   NewHeaderPolicy(cfg.Environment, cfg.Headers.AllowedOrigins, cfg.Headers.ConnectSrc),
		Metrics:   metricsAdapter,
	}
	if cfg.RateLimit.PerUser {
		adapters.UserRateLimit = NewUserRateLimitStage(rateLimiter)
	}
	return adapters
}

// Stop releases the counter store; the memory backend stops its sweeper.
func (sa *Adapters) Stop() error {
	if sa.Store != nil {
		return sa.Store.Close()
	}
	return nil
}
