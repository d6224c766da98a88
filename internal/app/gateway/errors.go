package gateway

import (
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/core/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Details   any              `json:"details,omitempty"`
	Code      domain.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	RequestID string           `json:"requestId"`
	Timestamp string           `json:"timestamp"`
}

// WriteError renders apiErr as the gateway's JSON error envelope.
func WriteError(w http.ResponseWriter, apiErr *domain.ApiError, requestID string, now time.Time) {
	body := errorEnvelope{Error: errorBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		RequestID: requestID,
		Timestamp: now.UTC().Format(time.RFC3339),
		Details:   apiErr.Details,
	}}

	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(apiErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteJSON is used by the internal endpoints for their success bodies.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
