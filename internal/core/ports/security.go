package ports

import (
	"context"
	"net/http"
	"sync"

	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/util"
)

// RoutePolicy is what a business route asks the gateway to enforce before
// its handler runs. The zero value means: anonymous allowed, no signature,
// no schema, limit class picked from path and method.
type RoutePolicy struct {
	Schema           SchemaValidator
	LimitClass       domain.LimitClass
	AllowedRoles     []string
	RequireAuth      bool
	RequireSignature bool
	AuditAccess      bool
}

// SecurityRequest is handed to every stage of the chain. Stages may add
// headers to ResponseHeaders; the gateway copies them onto the response
// whether the request is admitted or not.
type SecurityRequest struct {
	HTTP            *http.Request
	ApiCtx          *domain.ApiContext
	ResponseHeaders http.Header
	Policy          RoutePolicy

	bodyOnce  sync.Once
	body      []byte
	bodyErr   error
	bodyLimit int64
}

func NewSecurityRequest(r *http.Request, apiCtx *domain.ApiContext, policy RoutePolicy, bodyLimit int64) *SecurityRequest {
	return &SecurityRequest{
		HTTP:            r,
		ApiCtx:          apiCtx,
		Policy:          policy,
		ResponseHeaders: make(http.Header),
		bodyLimit:       bodyLimit,
	}
}

// Body reads the request body at most once and puts an identical reader
// back on the request so the business handler still sees the full stream.
func (sr *SecurityRequest) Body() ([]byte, error) {
	sr.bodyOnce.Do(func() {
		sr.body, sr.bodyErr = util.CloneBody(sr.HTTP, sr.bodyLimit)
	})
	return sr.body, sr.bodyErr
}

// SecurityStage is one step of the admission pipeline. A nil *ApiError
// lets the request through to the next stage.
type SecurityStage interface {
	Check(ctx context.Context, req *SecurityRequest) *domain.ApiError
	Name() string
}

type SecurityChain struct {
	stages []SecurityStage
}

func NewSecurityChain(stages ...SecurityStage) *SecurityChain {
	return &SecurityChain{
		stages: stages,
	}
}

// Check runs the stages in order and stops at the first refusal, returning
// the error and the name of the stage that produced it.
func (sc *SecurityChain) Check(ctx context.Context, req *SecurityRequest) (*domain.ApiError, string) {
	for _, stage := range sc.stages {
		if apiErr := stage.Check(ctx, req); apiErr != nil {
			return apiErr, stage.Name()
		}
	}
	return nil, ""
}

func (sc *SecurityChain) GetStages() []SecurityStage {
	return sc.stages
}
