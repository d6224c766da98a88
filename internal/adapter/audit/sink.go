package audit

/*
				Gatekeeper Audit Sink
	Sink is the single destination for SecurityEvents. Every event is written
	to the rotating audit log, counted per type, kept in a small ring of
	recent events for the stats endpoint and fanned out to live subscribers.
	Emit never blocks: a subscriber that cannot keep up loses events and the
	loss is counted.
*/

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
	"github.com/sitegate/gatekeeper/internal/logger"
)

const (
	DefaultRecentEvents     = 200
	DefaultSubscriberBuffer = 100
)

type Options struct {
	RecentEvents     int
	SubscriberBuffer int
}

type subscriber struct {
	ch      chan domain.SecurityEvent
	done    chan struct{}
	dropped atomic.Uint64
	mu      sync.RWMutex
	closed  bool
}

// deliver reports false when the subscriber buffer is full.
func (s *subscriber) deliver(event domain.SecurityEvent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- event:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
		close(s.done)
	}
}

type Sink struct {
	subscribers   *xsync.Map[string, *subscriber]
	counts        *xsync.Map[domain.SecurityEventType, *xsync.Counter]
	audit         *slog.Logger
	logger        *logger.StyledLogger
	recent        []domain.SecurityEvent
	recentMu      sync.Mutex
	recentNext    int
	recentFull    bool
	total         atomic.Int64
	dropped       atomic.Uint64
	subscriberSeq atomic.Uint64
	isShutdown    atomic.Bool
	bufferSize    int
	echo          bool
}

var (
	_ ports.SecurityEventSink     = (*Sink)(nil)
	_ ports.SecurityStatsProvider = (*Sink)(nil)
)

// NewSink writes events to audit. With a nil audit logger events are echoed
// to the console logger instead so they are never silently lost.
func NewSink(audit *slog.Logger, log *logger.StyledLogger, opts Options) *Sink {
	if opts.RecentEvents <= 0 {
		opts.RecentEvents = DefaultRecentEvents
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}

	s := &Sink{
		subscribers: xsync.NewMap[string, *subscriber](),
		counts:      xsync.NewMap[domain.SecurityEventType, *xsync.Counter](),
		audit:       audit,
		logger:      log,
		recent:      make([]domain.SecurityEvent, opts.RecentEvents),
		bufferSize:  opts.SubscriberBuffer,
	}
	if audit == nil {
		s.audit = slog.New(slog.DiscardHandler)
		s.echo = true
	}
	return s
}

func (s *Sink) Emit(ctx context.Context, event domain.SecurityEvent) {
	if s.isShutdown.Load() {
		return
	}

	s.total.Add(1)
	counter, _ := s.counts.LoadOrCompute(event.Type, func() (*xsync.Counter, bool) {
		return xsync.NewCounter(), false
	})
	counter.Inc()

	s.remember(event)
	s.write(ctx, event)

	s.subscribers.Range(func(_ string, sub *subscriber) bool {
		if !sub.deliver(event) {
			s.dropped.Add(1)
		}
		return true
	})
}

func (s *Sink) remember(event domain.SecurityEvent) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	s.recent[s.recentNext] = event
	s.recentNext++
	if s.recentNext == len(s.recent) {
		s.recentNext = 0
		s.recentFull = true
	}
}

func (s *Sink) write(ctx context.Context, event domain.SecurityEvent) {
	if s.echo && s.logger != nil {
		s.logger.LogSecurityEvent(ctx, event)
		return
	}

	attrs := []slog.Attr{
		slog.String("severity", string(event.Severity)),
		slog.String("ip", event.IP),
		slog.String("user_agent", event.UserAgent),
		slog.String("request_id", event.RequestID),
		slog.Time("event_time", event.Timestamp),
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, slog.Attr{Key: "details", Value: slog.GroupValue(detailAttrs(event.Details)...)})
	}
	s.audit.LogAttrs(ctx, levelFor(event.Severity), string(event.Type), attrs...)
}

// detailAttrs renders details in key order so audit lines diff cleanly.
func detailAttrs(details map[string]any) []slog.Attr {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		out = append(out, slog.Any(k, details[k]))
	}
	return out
}

func levelFor(severity domain.Severity) slog.Level {
	switch severity {
	case domain.SeverityCritical:
		return slog.LevelError
	case domain.SeverityHigh:
		return slog.LevelWarn
	case domain.SeverityMedium:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// Subscribe streams events emitted from now on. The channel is closed when
// ctx ends, the returned cancel func is called or the sink shuts down.
func (s *Sink) Subscribe(ctx context.Context) (<-chan domain.SecurityEvent, func()) {
	if s.isShutdown.Load() {
		ch := make(chan domain.SecurityEvent)
		close(ch)
		return ch, func() {}
	}

	id := "sub_" + strconv.FormatUint(s.subscriberSeq.Add(1), 10)
	sub := &subscriber{
		ch:   make(chan domain.SecurityEvent, s.bufferSize),
		done: make(chan struct{}),
	}
	s.subscribers.Store(id, sub)

	// the watcher exits on whichever comes first: ctx, cancel or Shutdown
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.unsubscribe(id)
			case <-sub.done:
			}
		}()
	}

	return sub.ch, func() { s.unsubscribe(id) }
}

func (s *Sink) unsubscribe(id string) {
	if sub, ok := s.subscribers.LoadAndDelete(id); ok {
		sub.close()
	}
}

// Stats returns counters and the recent events, newest first.
func (s *Sink) Stats() ports.SecurityStats {
	stats := ports.SecurityStats{
		EventsByType:  make(map[string]int64),
		TotalEvents:   s.total.Load(),
		DroppedEvents: s.dropped.Load(),
		Subscribers:   s.subscribers.Size(),
	}
	s.counts.Range(func(t domain.SecurityEventType, c *xsync.Counter) bool {
		stats.EventsByType[string(t)] = c.Value()
		return true
	})

	s.recentMu.Lock()
	n := s.recentNext
	if s.recentFull {
		n = len(s.recent)
	}
	stats.RecentEvents = make([]domain.SecurityEvent, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.recentNext - i + len(s.recent)) % len(s.recent)
		stats.RecentEvents = append(stats.RecentEvents, s.recent[idx])
	}
	s.recentMu.Unlock()

	return stats
}

// Shutdown closes every subscriber channel. Events emitted afterwards are
// discarded.
func (s *Sink) Shutdown() {
	if !s.isShutdown.CompareAndSwap(false, true) {
		return
	}
	s.subscribers.Range(func(id string, sub *subscriber) bool {
		sub.close()
		return true
	})
	s.subscribers.Clear()
}
