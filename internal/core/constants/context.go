package constants

type contextKey string

const (
	ContextApiKey       contextKey = "api_context" // *domain.ApiContext, set once at gateway entry
	ContextRequestIdKey            = "request_id"  // slog attribute name for the request id
)
