package security

/*
				Gatekeeper Security Adapter - Rate Limiter
	RateLimiter enforces fixed-window budgets per client and limit class on
	top of a CounterStore. The class is picked from the route policy or,
	failing that, from the path and method. When the store is failing the
	limiter answers "not limited" with a full quota and reports the outage,
	so a backend hiccup never turns into a wave of 429s.

	References:
	- https://datatracker.ietf.org/doc/draft-ietf-httpapi-ratelimit-headers/
*/

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sitegate/gatekeeper/internal/config"
	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
	"github.com/sitegate/gatekeeper/internal/logger"
)

const (
	RateLimitKeyPrefix = "rate_limit:"

	StageRateLimit     = "rate_limit"
	StageUserRateLimit = "user_rate_limit"
)

type RateLimiter struct {
	store    ports.CounterStore
	metrics  *MetricsAdapter
	logger   *logger.StyledLogger
	policies map[domain.LimitClass]domain.LimitPolicy
	now      func() time.Time
	paths    config.ClassPathConfig
}

func NewRateLimiter(store ports.CounterStore, policies map[domain.LimitClass]domain.LimitPolicy, paths config.ClassPathConfig, metrics *MetricsAdapter, logger *logger.StyledLogger) *RateLimiter {
	if policies == nil {
		policies = domain.DefaultLimitPolicies()
	}
	return &RateLimiter{
		store:    store,
		policies: policies,
		paths:    paths,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Name() string {
	return StageRateLimit
}

// Policy returns the budget for class, falling back to the default class.
func (rl *RateLimiter) Policy(class domain.LimitClass) domain.LimitPolicy {
	if p, ok := rl.policies[class]; ok {
		return p
	}
	return rl.policies[domain.LimitClassDefault]
}

// IsLimited counts one request for identifier against class.
func (rl *RateLimiter) IsLimited(ctx context.Context, identifier string, class domain.LimitClass) domain.RateLimitResult {
	return rl.isLimited(ctx, identifier, class, nil)
}

func (rl *RateLimiter) isLimited(ctx context.Context, identifier string, class domain.LimitClass, apiCtx *domain.ApiContext) domain.RateLimitResult {
	policy := rl.Policy(class)
	key := RateLimitKeyPrefix + string(class) + ":" + identifier
	now := rl.now()

	rec, err := rl.store.Increment(ctx, key, policy.Window)
	if err != nil {
		backend := rl.store.Name()
		var storeErr *domain.StoreError
		if errors.As(err, &storeErr) {
			backend = storeErr.Backend
		}
		rl.metrics.RecordStoreError(ctx, backend, err, apiCtx, class)

		return domain.RateLimitResult{
			Class:     class,
			Limit:     policy.MaxRequests,
			Remaining: policy.MaxRequests,
			ResetAt:   now.Add(policy.Window),
			Degraded:  true,
		}
	}

	result := domain.RateLimitResult{
		Class:     class,
		Limit:     policy.MaxRequests,
		Remaining: max(0, policy.MaxRequests-int(rec.Count)),
		ResetAt:   rec.WindowResetAt,
		Limited:   rec.Count > int64(policy.MaxRequests),
	}

	if result.Limited {
		result.Message = policy.Message
		result.RetryAfter = retryAfterSeconds(rec.WindowResetAt, now)
	}

	rl.metrics.RecordRateLimit(class, result.Limited)
	return result
}

// retryAfterSeconds rounds up and never advertises less than one second.
func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	return max(1, secs)
}

// ClassFor picks a limit class from the request shape. Path segments win
// over methods, in the order auth, upload, admin, analytics.
func (rl *RateLimiter) ClassFor(method, path string) domain.LimitClass {
	p := strings.ToLower(path)

	switch {
	case matchesAnySegment(p, rl.paths.Auth):
		return domain.LimitClassAuth
	case matchesAnySegment(p, rl.paths.Upload):
		return domain.LimitClassUpload
	case matchesAnySegment(p, rl.paths.Admin):
		return domain.LimitClassAdmin
	case matchesAnySegment(p, rl.paths.Analytics):
		return domain.LimitClassAnalytics
	}

	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return domain.LimitClassWrite
	case http.MethodGet:
		return domain.LimitClassRead
	}
	return domain.LimitClassDefault
}

// matchesAnySegment reports whether any entry appears in path as whole
// segments: "/auth" matches /api/auth and /api/auth/login but not
// /api/authors.
func matchesAnySegment(path string, entries []string) bool {
	for _, e := range entries {
		e = strings.TrimRight(strings.ToLower(e), "/")
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, "/") {
			e = "/" + e
		}
		for rest := path; ; {
			i := strings.Index(rest, e)
			if i < 0 {
				break
			}
			end := i + len(e)
			if end == len(rest) || rest[end] == '/' {
				return true
			}
			rest = rest[i+1:]
		}
	}
	return false
}

func (rl *RateLimiter) classForRequest(req *ports.SecurityRequest) domain.LimitClass {
	if req.Policy.LimitClass != "" {
		return req.Policy.LimitClass
	}
	return rl.ClassFor(req.HTTP.Method, req.HTTP.URL.Path)
}

// Check is the pre-authentication stage, keyed on client IP only.
func (rl *RateLimiter) Check(ctx context.Context, req *ports.SecurityRequest) *domain.ApiError {
	return rl.check(ctx, req, req.ApiCtx.IP)
}

func (rl *RateLimiter) check(ctx context.Context, req *ports.SecurityRequest, identifier string) *domain.ApiError {
	class := rl.classForRequest(req)
	result := rl.isLimited(ctx, identifier, class, req.ApiCtx)

	// we need to make sure we _always_ send these headers
	req.ResponseHeaders.Set(constants.HeaderRateLimitLimit, strconv.Itoa(result.Limit))
	req.ResponseHeaders.Set(constants.HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
	req.ResponseHeaders.Set(constants.HeaderRateLimitReset, strconv.FormatInt(result.ResetAt.Unix(), 10))

	if !result.Limited {
		return nil
	}

	req.ResponseHeaders.Set(constants.HeaderRetryAfter, strconv.Itoa(result.RetryAfter))

	rl.logger.Warn("Rate limit exceeded",
		"client", identifier,
		"limit_class", class,
		"method", req.HTTP.Method,
		"path", req.HTTP.URL.Path,
		"limit", result.Limit,
		"retry_after", result.RetryAfter)

	rl.metrics.Emit(ctx, domain.NewSecurityEvent(domain.EventRateLimitExceeded, domain.SeverityMedium, req.ApiCtx, map[string]any{
		"identifier": identifier,
		"limitClass": string(class),
		"limit":      result.Limit,
		"path":       req.HTTP.URL.Path,
		"retryAfter": result.RetryAfter,
	}))

	return domain.ErrRateLimited.
		WithMessage(result.Message).
		WithDetails(map[string]any{
			"limitClass": string(class),
			"retryAfter": result.RetryAfter,
		})
}

// UserRateLimitStage runs after authentication and counts the request a
// second time under "ip:userId", so one account behind a shared address
// cannot exhaust the budget of its neighbours. Anonymous requests pass.
type UserRateLimitStage struct {
	limiter *RateLimiter
}

func NewUserRateLimitStage(limiter *RateLimiter) *UserRateLimitStage {
	return &UserRateLimitStage{limiter: limiter}
}

func (us *UserRateLimitStage) Name() string {
	return StageUserRateLimit
}

func (us *UserRateLimitStage) Check(ctx context.Context, req *ports.SecurityRequest) *domain.ApiError {
	userID := req.ApiCtx.UserID()
	if userID == "" {
		return nil
	}
	return us.limiter.check(ctx, req, req.ApiCtx.IP+":"+userID)
}
