package store

/*
				Gatekeeper Counter Store - In-process
	MemoryStore keeps fixed-window counters in a plain map behind a single
	mutex that is held only for the read-modify-write of one key. A sweep
	goroutine evicts expired windows so idle clients don't pin memory.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/sitegate/gatekeeper/internal/core/domain"
)

const (
	BackendMemory = "memory"

	DefaultSweepInterval = 5 * time.Minute
)

type MemoryStore struct {
	records     map[string]*domain.RateLimitRecord
	now         func() time.Time
	sweepTicker *time.Ticker
	stopSweep   chan struct{}
	mu          sync.Mutex
	stopOnce    sync.Once
	closed      bool
}

// NewMemoryStore starts the sweep goroutine immediately; call Close to stop it.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	return newMemoryStoreWithClock(sweepInterval, time.Now)
}

func newMemoryStoreWithClock(sweepInterval time.Duration, now func() time.Time) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	ms := &MemoryStore{
		records:     make(map[string]*domain.RateLimitRecord),
		now:         now,
		sweepTicker: time.NewTicker(sweepInterval),
		stopSweep:   make(chan struct{}),
	}
	go ms.sweepRoutine()
	return ms
}

func (ms *MemoryStore) Name() string {
	return BackendMemory
}

func (ms *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (domain.RateLimitRecord, error) {
	now := ms.now()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return domain.RateLimitRecord{}, domain.NewStoreError(BackendMemory, "increment", key, domain.ErrStoreClosed)
	}

	rec, ok := ms.records[key]
	if !ok || rec.Expired(now) {
		rec = &domain.RateLimitRecord{
			Key:           key,
			Count:         1,
			WindowResetAt: now.Add(window),
		}
		ms.records[key] = rec
		return *rec, nil
	}

	rec.Count++
	return *rec, nil
}

func (ms *MemoryStore) Get(_ context.Context, key string) (domain.RateLimitRecord, bool, error) {
	now := ms.now()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return domain.RateLimitRecord{}, false, domain.NewStoreError(BackendMemory, "get", key, domain.ErrStoreClosed)
	}

	rec, ok := ms.records[key]
	if !ok || rec.Expired(now) {
		return domain.RateLimitRecord{}, false, nil
	}
	return *rec, true, nil
}

// Len reports how many windows are held, live or not yet swept.
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.records)
}

func (ms *MemoryStore) sweepRoutine() {
	for {
		select {
		case <-ms.stopSweep:
			return
		case <-ms.sweepTicker.C:
			ms.sweep()
		}
	}
}

func (ms *MemoryStore) sweep() int {
	now := ms.now()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	removed := 0
	for key, rec := range ms.records {
		if rec.Expired(now) {
			delete(ms.records, key)
			removed++
		}
	}
	return removed
}

// Close stops the sweeper and rejects further calls. Safe to call twice.
func (ms *MemoryStore) Close() error {
	ms.stopOnce.Do(func() {
		ms.sweepTicker.Stop()
		close(ms.stopSweep)

		ms.mu.Lock()
		ms.closed = true
		ms.records = make(map[string]*domain.RateLimitRecord)
		ms.mu.Unlock()
	})
	return nil
}
