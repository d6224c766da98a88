package gateway

import (
	"context"

	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/core/domain"
)

// WithApiContext stores the request's ApiContext for business handlers.
func WithApiContext(ctx context.Context, apiCtx *domain.ApiContext) context.Context {
	return context.WithValue(ctx, constants.ContextApiKey, apiCtx)
}

// FromContext returns the ApiContext built when the request entered the
// gateway, or nil outside a gateway-wrapped handler.
func FromContext(ctx context.Context) *domain.ApiContext {
	apiCtx, _ := ctx.Value(constants.ContextApiKey).(*domain.ApiContext)
	return apiCtx
}
