package app

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/sitegate/gatekeeper/internal/adapter/factory"
	"github.com/sitegate/gatekeeper/internal/app/gateway"
	"github.com/sitegate/gatekeeper/internal/config"
	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/logger"
)

var errUpstreamUnavailable = &domain.ApiError{
	Code:       domain.CodeInternalError,
	Message:    "Upstream service unavailable",
	HTTPStatus: http.StatusBadGateway,
}

// newUpstreamProxy forwards admitted requests to the business backend. The
// caller identity travels in X-Gatekeeper-User; a client-supplied value is
// always dropped so the backend can trust the header.
func newUpstreamProxy(cfg config.UpstreamConfig, log *logger.StyledLogger) (http.Handler, error) {
	target, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream url: %w", err)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del(constants.HeaderForwardedUser)
			if apiCtx := gateway.FromContext(pr.In.Context()); apiCtx != nil {
				if id := apiCtx.UserID(); id != "" {
					pr.Out.Header.Set(constants.HeaderForwardedUser, id)
				}
				pr.Out.Header.Set(constants.HeaderXRequestID, apiCtx.RequestID)
			}
		},
		Transport:     factory.NewUpstreamTransport(cfg.Timeout),
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			requestID := ""
			if apiCtx := gateway.FromContext(r.Context()); apiCtx != nil {
				requestID = apiCtx.RequestID
			}
			if errors.Is(err, r.Context().Err()) {
				log.Debug("Client went away before upstream answered", "path", r.URL.Path, "request_id", requestID)
				return
			}
			log.WarnWithContext("Upstream request failed", r.URL.Path, logger.LogContext{
				UserArgs:     []interface{}{"upstream", target.Host, "request_id", requestID},
				DetailedArgs: []interface{}{"method", r.Method, "error", err},
			})
			gateway.WriteError(w, errUpstreamUnavailable, requestID, time.Now())
		},
	}
	return proxy, nil
}
