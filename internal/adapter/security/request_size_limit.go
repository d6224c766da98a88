package security

import (
	"context"
	"errors"
	"net/http"

	"github.com/docker/go-units"

	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
	"github.com/sitegate/gatekeeper/internal/logger"
)

const StageSizeLimit = "size_limit"

/*
				Gatekeeper Security Adapter - Size Limit Validator
	SizeValidator runs first so oversized bodies are refused before any
	counter is touched or any byte is inspected. A declared Content-Length
	is trusted for the fast path; chunked bodies are measured by reading up
	to the limit.

	Holds no mutable state, so one instance serves every request.
*/

type SizeValidator struct {
	metrics     *MetricsAdapter
	logger      *logger.StyledLogger
	maxBodySize int64
}

func NewSizeValidator(maxBodySize int64, metrics *MetricsAdapter, logger *logger.StyledLogger) *SizeValidator {
	return &SizeValidator{
		maxBodySize: maxBodySize,
		metrics:     metrics,
		logger:      logger,
	}
}

func (sv *SizeValidator) Name() string {
	return StageSizeLimit
}

func (sv *SizeValidator) MaxBodySize() int64 {
	return sv.maxBodySize
}

func (sv *SizeValidator) Check(ctx context.Context, req *ports.SecurityRequest) *domain.ApiError {
	if sv.maxBodySize <= 0 {
		return nil
	}

	size := req.HTTP.ContentLength
	if size > sv.maxBodySize {
		return sv.reject(ctx, req, size)
	}

	// unknown length, measure it
	if size < 0 {
		if _, err := req.Body(); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return sv.reject(ctx, req, -1)
			}
			sv.logger.Warn("Failed to read request body", "path", req.HTTP.URL.Path, "error", err)
			return domain.ErrValidation.WithMessage("Request body could not be read")
		}
	}

	return nil
}

func (sv *SizeValidator) reject(ctx context.Context, req *ports.SecurityRequest, size int64) *domain.ApiError {
	declared := "unknown"
	if size >= 0 {
		declared = units.HumanSize(float64(size))
	}
	limit := units.HumanSize(float64(sv.maxBodySize))

	sv.logger.Warn("Request body too large",
		"method", req.HTTP.Method,
		"path", req.HTTP.URL.Path,
		"size", declared,
		"limit", limit,
		"client_ip", req.ApiCtx.IP)

	sv.metrics.Emit(ctx, domain.NewSecurityEvent(domain.EventRequestTooLarge, domain.SeverityMedium, req.ApiCtx, map[string]any{
		"path":  req.HTTP.URL.Path,
		"size":  size,
		"limit": sv.maxBodySize,
	}))

	return domain.ErrRequestTooLarge.WithDetails(map[string]any{
		"maxBytes": sv.maxBodySize,
	})
}
