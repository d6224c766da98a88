package store

import (
	"fmt"

	"github.com/sitegate/gatekeeper/internal/config"
	"github.com/sitegate/gatekeeper/internal/core/ports"
)

// NewFromConfig picks the CounterStore backend named by rate_limit.backend.
func NewFromConfig(cfg *config.Config) (ports.CounterStore, error) {
	switch cfg.RateLimit.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(cfg.RateLimit.SweepInterval), nil
	case config.BackendRedis:
		return NewRedisStore(RedisOptions{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			OpTimeout:    cfg.Redis.OpTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown counter store backend %q", cfg.RateLimit.Backend)
	}
}
