package domain

import (
	"net/http"
	"time"
)

type ErrorCode string

const (
	CodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	CodeForbidden        ErrorCode = "FORBIDDEN"
	CodeValidationError  ErrorCode = "VALIDATION_ERROR"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
	CodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	CodeRequestTooLarge  ErrorCode = "REQUEST_TOO_LARGE"
	CodeWAFBlocked       ErrorCode = "WAF_BLOCKED"
	CodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// ApiError is what a pipeline stage hands back when it refuses a request.
// Details is rendered into the response body, so it must never carry
// internal state or attack payloads.
type ApiError struct {
	Details    any
	Code       ErrorCode
	Message    string
	HTTPStatus int
}

func (e *ApiError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// WithDetails returns a copy so the shared taxonomy values stay immutable.
func (e *ApiError) WithDetails(details any) *ApiError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *ApiError) WithMessage(message string) *ApiError {
	cp := *e
	cp.Message = message
	return &cp
}

var (
	ErrUnauthorized = &ApiError{
		Code:       CodeUnauthorized,
		Message:    "Authentication is required",
		HTTPStatus: http.StatusUnauthorized,
	}
	ErrForbidden = &ApiError{
		Code:       CodeForbidden,
		Message:    "You do not have permission to perform this action",
		HTTPStatus: http.StatusForbidden,
	}
	ErrValidation = &ApiError{
		Code:       CodeValidationError,
		Message:    "Request validation failed",
		HTTPStatus: http.StatusBadRequest,
	}
	ErrRateLimited = &ApiError{
		Code:       CodeRateLimited,
		Message:    "Too many requests, please try again later",
		HTTPStatus: http.StatusTooManyRequests,
	}
	ErrInvalidSignature = &ApiError{
		Code:       CodeInvalidSignature,
		Message:    "Request signature is invalid",
		HTTPStatus: http.StatusUnauthorized,
	}
	ErrRequestTooLarge = &ApiError{
		Code:       CodeRequestTooLarge,
		Message:    "Request body exceeds the allowed size",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
	ErrWAFBlocked = &ApiError{
		Code:       CodeWAFBlocked,
		Message:    "Request blocked by security policy",
		HTTPStatus: http.StatusForbidden,
	}
	ErrInternal = &ApiError{
		Code:       CodeInternalError,
		Message:    "An internal error occurred",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// FieldError is a single schema violation reported with VALIDATION_ERROR.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// User is the authenticated caller as returned by the identity provider.
type User struct {
	ID       string
	Email    string
	TenantID string
}

// Profile carries the authorisation attributes of a user within a tenant.
type Profile struct {
	Role           string
	OrganizationID string
	SiteIDs        []string
}

// ApiContext is built once when a request enters the gateway. User and
// Profile are filled by the authentication stage and not touched afterwards.
type ApiContext struct {
	Timestamp time.Time
	User      *User
	Profile   *Profile
	IP        string
	UserAgent string
	RequestID string
}

func (c *ApiContext) UserID() string {
	if c == nil || c.User == nil {
		return ""
	}
	return c.User.ID
}

func (c *ApiContext) Role() string {
	if c == nil || c.Profile == nil {
		return ""
	}
	return c.Profile.Role
}
