package gateway

import (
	"context"
	"slices"

	"github.com/sitegate/gatekeeper/internal/adapter/security"
	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
	"github.com/sitegate/gatekeeper/internal/logger"
)

const (
	StageAuth   = "auth"
	StageRole   = "role"
	StageSchema = "schema"
)

// authStage resolves the caller. Presented credentials that fail to verify
// are refused even on routes that allow anonymous access.
type authStage struct {
	auth    ports.Authenticator
	metrics *security.MetricsAdapter
	logger  *logger.StyledLogger
}

func (s *authStage) Name() string {
	return StageAuth
}

func (s *authStage) Check(ctx context.Context, req *ports.SecurityRequest) *domain.ApiError {
	if s.auth == nil {
		if req.Policy.RequireAuth {
			s.logger.Error("Route requires authentication but no authenticator is configured", "path", req.HTTP.URL.Path)
			return s.refuse(ctx, req, "authenticator not configured")
		}
		return nil
	}

	user, profile, err := s.auth.Authenticate(ctx, req.HTTP)
	if err != nil {
		s.logger.Warn("Authentication failed", "path", req.HTTP.URL.Path, "client_ip", req.ApiCtx.IP, "error", err)
		return s.refuse(ctx, req, err.Error())
	}
	if user == nil {
		if req.Policy.RequireAuth {
			return s.refuse(ctx, req, "credentials missing")
		}
		return nil
	}

	req.ApiCtx.User = user
	req.ApiCtx.Profile = profile
	return nil
}

func (s *authStage) refuse(ctx context.Context, req *ports.SecurityRequest, reason string) *domain.ApiError {
	s.metrics.Emit(ctx, domain.NewSecurityEvent(domain.EventUnauthorized, domain.SeverityMedium, req.ApiCtx, map[string]any{
		"reason": reason,
		"path":   req.HTTP.URL.Path,
		"method": req.HTTP.Method,
	}))
	return domain.ErrUnauthorized
}

type roleStage struct {
	metrics *security.MetricsAdapter
	logger  *logger.StyledLogger
}

func (s *roleStage) Name() string {
	return StageRole
}

func (s *roleStage) Check(ctx context.Context, req *ports.SecurityRequest) *domain.ApiError {
	if len(req.Policy.AllowedRoles) == 0 {
		return nil
	}
	if req.ApiCtx.User == nil {
		s.metrics.Emit(ctx, domain.NewSecurityEvent(domain.EventUnauthorized, domain.SeverityMedium, req.ApiCtx, map[string]any{
			"reason": "role required for anonymous request",
			"path":   req.HTTP.URL.Path,
		}))
		return domain.ErrUnauthorized
	}

	role := req.ApiCtx.Role()
	if role != "" && slices.Contains(req.Policy.AllowedRoles, role) {
		return nil
	}

	s.logger.Warn("Role not permitted", "user", req.ApiCtx.UserID(), "role", role, "path", req.HTTP.URL.Path)
	s.metrics.Emit(ctx, domain.NewSecurityEvent(domain.EventForbidden, domain.SeverityMedium, req.ApiCtx, map[string]any{
		"userId":        req.ApiCtx.UserID(),
		"role":          role,
		"requiredRoles": req.Policy.AllowedRoles,
		"path":          req.HTTP.URL.Path,
	}))
	return domain.ErrForbidden
}

type schemaStage struct {
	metrics *security.MetricsAdapter
}

func (s *schemaStage) Name() string {
	return StageSchema
}

func (s *schemaStage) Check(ctx context.Context, req *ports.SecurityRequest) *domain.ApiError {
	if req.Policy.Schema == nil {
		return nil
	}

	body, err := req.Body()
	if err != nil {
		return domain.ErrValidation.WithMessage("Request body could not be read")
	}

	fieldErrs := req.Policy.Schema.Validate(ctx, body)
	if len(fieldErrs) == 0 {
		return nil
	}

	fields := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		fields[i] = fe.Field
	}
	s.metrics.Emit(ctx, domain.NewSecurityEvent(domain.EventValidationFailed, domain.SeverityLow, req.ApiCtx, map[string]any{
		"fields": fields,
		"path":   req.HTTP.URL.Path,
	}))
	return domain.ErrValidation.WithDetails(fieldErrs)
}
