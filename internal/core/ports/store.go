package ports

import (
	"context"
	"time"

	"github.com/sitegate/gatekeeper/internal/core/domain"
)

// CounterStore is a key/value counter with fixed-window expiry. Both
// implementations must return a *domain.StoreError on backend failure
// rather than a guessed count.
type CounterStore interface {
	// Increment bumps the counter for key, starting a new window of the
	// given length when none is live.
	Increment(ctx context.Context, key string, window time.Duration) (domain.RateLimitRecord, error)

	// Get returns the live record for key; ok is false when absent or expired.
	Get(ctx context.Context, key string) (record domain.RateLimitRecord, ok bool, err error)

	Name() string
	Close() error
}
