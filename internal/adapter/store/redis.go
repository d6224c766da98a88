package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitegate/gatekeeper/internal/core/domain"
)

const BackendRedis = "redis"

// incrementScript bumps the counter and arms the expiry only on the first
// hit of a window, so the reset time never moves while the window is live.
// Returns {count, pttl_ms}.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

type RedisStore struct {
	client    redis.UniversalClient
	now       func() time.Time
	prefix    string
	opTimeout time.Duration
	ownClient bool
}

type RedisOptions struct {
	Addr         string
	Password     string
	KeyPrefix    string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	OpTimeout    time.Duration
}

// NewRedisStore dials lazily; the first failing call surfaces as a StoreError.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		MaxRetries:   -1, // a slow store must fail fast, the limiter fails open
	})

	rs := NewRedisStoreWithClient(client, opts.KeyPrefix, opts.OpTimeout)
	rs.ownClient = true
	return rs
}

// NewRedisStoreWithClient wraps an existing client; Close leaves it open.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string, opTimeout time.Duration) *RedisStore {
	if opTimeout <= 0 {
		opTimeout = time.Second
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		opTimeout: opTimeout,
		now:       time.Now,
	}
}

func (rs *RedisStore) Name() string {
	return BackendRedis
}

func (rs *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (domain.RateLimitRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.opTimeout)
	defer cancel()

	res, err := incrementScript.Run(ctx, rs.client, []string{rs.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.RateLimitRecord{}, rs.wrap("increment", key, err)
	}
	if len(res) != 2 {
		return domain.RateLimitRecord{}, rs.wrap("increment", key, fmt.Errorf("unexpected script reply %v", res))
	}

	return domain.RateLimitRecord{
		Key:           key,
		Count:         res[0],
		WindowResetAt: rs.now().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

func (rs *RedisStore) Get(ctx context.Context, key string) (domain.RateLimitRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.opTimeout)
	defer cancel()

	fullKey := rs.prefix + key
	pipe := rs.client.Pipeline()
	countCmd := pipe.Get(ctx, fullKey)
	ttlCmd := pipe.PTTL(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.RateLimitRecord{}, false, rs.wrap("get", key, err)
	}

	count, err := countCmd.Int64()
	if errors.Is(err, redis.Nil) {
		return domain.RateLimitRecord{}, false, nil
	}
	if err != nil {
		return domain.RateLimitRecord{}, false, rs.wrap("get", key, err)
	}

	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return domain.RateLimitRecord{}, false, nil
	}

	return domain.RateLimitRecord{
		Key:           key,
		Count:         count,
		WindowResetAt: rs.now().Add(ttl),
	}, true, nil
}

// Ping is used at startup to warn early about an unreachable store.
func (rs *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rs.opTimeout)
	defer cancel()
	if err := rs.client.Ping(ctx).Err(); err != nil {
		return rs.wrap("ping", "", err)
	}
	return nil
}

func (rs *RedisStore) Close() error {
	if !rs.ownClient {
		return nil
	}
	if err := rs.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return rs.wrap("close", "", err)
	}
	return nil
}

func (rs *RedisStore) wrap(op, key string, err error) error {
	if errors.Is(err, redis.ErrClosed) {
		err = fmt.Errorf("%w: %w", domain.ErrStoreClosed, err)
	} else {
		err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return domain.NewStoreError(BackendRedis, op, key, err)
}
