package gateway

/*
				Gatekeeper Gateway
	Gateway wraps business handlers with the admission pipeline:

		size -> rate limit -> auth -> per-user rate limit -> role ->
		signature -> waf -> schema -> access audit -> handler

	The first stage to refuse decides the response. Security headers and a
	fresh X-Request-ID go on every response, refusals included. Handler
	errors and panics become INTERNAL_ERROR with a generic message; the
	detail only reaches the logs and the audit sink.
*/

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sitegate/gatekeeper/internal/adapter/audit"
	"github.com/sitegate/gatekeeper/internal/adapter/security"
	"github.com/sitegate/gatekeeper/internal/adapter/waf"
	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
	"github.com/sitegate/gatekeeper/internal/logger"
	"github.com/sitegate/gatekeeper/internal/util"
)

// HandlerFunc is a business handler that may refuse a request with an
// *domain.ApiError. Any other error is reported as INTERNAL_ERROR.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

type Options struct {
	Security          *security.Adapters
	WAF               *waf.Engine
	Authenticator     ports.Authenticator
	Metrics           ports.SecurityMetrics
	Sink              *audit.Sink
	Logger            *logger.StyledLogger
	TrustedProxyCIDRs []*net.IPNet
	MaxBodyBytes      int64
	TrustProxyHeaders bool
}

type Gateway struct {
	chain        *ports.SecurityChain
	security     *security.Adapters
	waf          *waf.Engine
	metrics      ports.SecurityMetrics
	sink         *audit.Sink
	logger       *logger.StyledLogger
	trustedCIDRs []*net.IPNet
	now          func() time.Time
	maxBodyBytes int64
	trustProxy   bool
}

func New(opts Options) (*Gateway, error) {
	if opts.Security == nil {
		return nil, errors.New("gateway requires security adapters")
	}
	if opts.Logger == nil {
		return nil, errors.New("gateway requires a logger")
	}

	sec := opts.Security
	stages := []ports.SecurityStage{
		sec.Size,
		sec.RateLimit,
		&authStage{auth: opts.Authenticator, metrics: sec.Metrics, logger: opts.Logger},
	}
	if sec.UserRateLimit != nil {
		stages = append(stages, sec.UserRateLimit)
	}
	stages = append(stages,
		&roleStage{metrics: sec.Metrics, logger: opts.Logger},
		sec.Signature,
	)
	if opts.WAF != nil {
		stages = append(stages, opts.WAF)
	}
	stages = append(stages, &schemaStage{metrics: sec.Metrics})

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = sec.Size.MaxBodySize()
	}

	return &Gateway{
		chain:        ports.NewSecurityChain(stages...),
		security:     sec,
		waf:          opts.WAF,
		metrics:      opts.Metrics,
		sink:         opts.Sink,
		logger:       opts.Logger,
		trustedCIDRs: opts.TrustedProxyCIDRs,
		trustProxy:   opts.TrustProxyHeaders,
		maxBodyBytes: maxBody,
		now:          time.Now,
	}, nil
}

// Stages lists the pipeline stage names in execution order.
func (g *Gateway) Stages() []string {
	stages := g.chain.GetStages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	return names
}

// Wrap protects a plain http.Handler with policy. route labels metrics.
func (g *Gateway) Wrap(route string, policy ports.RoutePolicy, next http.Handler) http.Handler {
	return g.Handle(route, policy, func(w http.ResponseWriter, r *http.Request) error {
		next.ServeHTTP(w, r)
		return nil
	})
}

// WrapResolved looks the policy up per request, for catch-all routes whose
// policy depends on the path.
func (g *Gateway) WrapResolved(route string, policies *PolicyTable, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policy := policies.Resolve(r.Method, r.URL.Path)
		g.serve(w, r, route, policy, func(w http.ResponseWriter, r *http.Request) error {
			next.ServeHTTP(w, r)
			return nil
		})
	})
}

func (g *Gateway) Handle(route string, policy ports.RoutePolicy, handler HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, route, policy, handler)
	})
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, route string, policy ports.RoutePolicy, handler HandlerFunc) {
	start := g.now()
	apiCtx := &domain.ApiContext{
		IP:        util.GetClientIP(r, g.trustProxy, g.trustedCIDRs),
		UserAgent: r.UserAgent(),
		RequestID: util.GenerateRequestID(),
		Timestamp: start,
	}

	rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if g.metrics != nil {
			g.metrics.RecordRequest(route, rw.status, g.now().Sub(start))
		}
	}()

	g.security.Headers.Apply(rw.Header(), r.Header.Get(constants.HeaderOrigin))
	rw.Header().Set(constants.HeaderXRequestID, apiCtx.RequestID)

	if security.IsPreflight(r) {
		rw.WriteHeader(http.StatusNoContent)
		return
	}

	ctx := r.Context()
	sreq := ports.NewSecurityRequest(r, apiCtx, policy, g.maxBodyBytes)
	apiErr, stage := g.chain.Check(ctx, sreq)
	for k, v := range sreq.ResponseHeaders {
		rw.Header()[k] = v
	}
	if apiErr != nil {
		if g.metrics != nil {
			g.metrics.RecordRejection(stage, apiErr.Code)
		}
		g.logger.WithRequestID(apiCtx.RequestID).Debug("Request refused", "stage", stage, "code", apiErr.Code, "path", r.URL.Path)
		WriteError(rw, apiErr, apiCtx.RequestID, g.now())
		return
	}

	if policy.AuditAccess {
		g.security.Metrics.Emit(ctx, domain.NewSecurityEvent(domain.EventAPIAccess, domain.SeverityLow, apiCtx, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"userId": apiCtx.UserID(),
		}))
	}

	g.invoke(rw, r.WithContext(WithApiContext(ctx, apiCtx)), apiCtx, handler)
}

func (g *Gateway) invoke(rw *responseWriter, r *http.Request, apiCtx *domain.ApiContext, handler HandlerFunc) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			g.fail(rw, r, apiCtx, fmt.Errorf("panic: %v", rec))
		}
	}()

	err := handler(rw, r)
	if err == nil {
		return
	}

	var apiErr *domain.ApiError
	if errors.As(err, &apiErr) {
		if g.metrics != nil {
			g.metrics.RecordRejection("handler", apiErr.Code)
		}
		if !rw.wroteHeader {
			WriteError(rw, apiErr, apiCtx.RequestID, g.now())
		}
		return
	}
	g.fail(rw, r, apiCtx, err)
}

func (g *Gateway) fail(rw *responseWriter, r *http.Request, apiCtx *domain.ApiContext, err error) {
	g.logger.WithRequestID(apiCtx.RequestID).ErrorWithContext("Handler failed", r.URL.Path, logger.LogContext{
		UserArgs:     []interface{}{"method", r.Method},
		DetailedArgs: []interface{}{"client_ip", apiCtx.IP, "error", err},
	})
	g.security.Metrics.Emit(r.Context(), domain.NewSecurityEvent(domain.EventInternalError, domain.SeverityHigh, apiCtx, map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
	}))
	if g.metrics != nil {
		g.metrics.RecordRejection("handler", domain.CodeInternalError)
	}

	if rw.wroteHeader {
		// response already on the wire, nothing left to tell the client
		return
	}
	WriteError(rw, domain.ErrInternal, apiCtx.RequestID, g.now())
}

// Close releases the counter store and shuts the audit sink down.
func (g *Gateway) Close(_ context.Context) error {
	err := g.security.Stop()
	if g.sink != nil {
		g.sink.Shutdown()
	}
	return err
}
