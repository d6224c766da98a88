package security

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
)

func newTestSizeValidator(limit int64, sink *recordingSink) *SizeValidator {
	return NewSizeValidator(limit, NewSecurityMetricsAdapter(nil, sink, createTestLogger()), createTestLogger())
}

func TestSizeValidator_SmallRequest(t *testing.T) {
	sv := newTestSizeValidator(1024, &recordingSink{})
	req := newTestSecurityRequest(http.MethodPost, "/api/sites", []byte(`{"name":"Depot"}`), "10.0.0.1")

	if apiErr := sv.Check(context.Background(), req); apiErr != nil {
		t.Errorf("small body refused: %v", apiErr)
	}
}

func TestSizeValidator_DeclaredLengthTooLarge(t *testing.T) {
	sink := &recordingSink{}
	sv := newTestSizeValidator(10, sink)
	req := newTestSecurityRequest(http.MethodPost, "/api/sites", []byte(strings.Repeat("x", 11)), "10.0.0.1")

	apiErr := sv.Check(context.Background(), req)
	if apiErr == nil {
		t.Fatal("expected refusal")
	}
	if apiErr.Code != domain.CodeRequestTooLarge || apiErr.HTTPStatus != http.StatusRequestEntityTooLarge {
		t.Errorf("expected REQUEST_TOO_LARGE 413, got %s %d", apiErr.Code, apiErr.HTTPStatus)
	}
	if len(sink.ofType(domain.EventRequestTooLarge)) != 1 {
		t.Error("expected a request_too_large event")
	}
}

func TestSizeValidator_ExactLimit(t *testing.T) {
	sv := newTestSizeValidator(10, &recordingSink{})
	req := newTestSecurityRequest(http.MethodPost, "/api/sites", []byte(strings.Repeat("x", 10)), "10.0.0.1")

	if apiErr := sv.Check(context.Background(), req); apiErr != nil {
		t.Errorf("body at the limit refused: %v", apiErr)
	}
}

func TestSizeValidator_ChunkedBodyMeasured(t *testing.T) {
	sv := newTestSizeValidator(10, &recordingSink{})

	r := httptest.NewRequest(http.MethodPost, "/api/sites", io.NopCloser(strings.NewReader(strings.Repeat("x", 50))))
	r.ContentLength = -1
	req := ports.NewSecurityRequest(r, &domain.ApiContext{IP: "10.0.0.1", Timestamp: time.Now()}, ports.RoutePolicy{}, 10)

	apiErr := sv.Check(context.Background(), req)
	if apiErr == nil || apiErr.Code != domain.CodeRequestTooLarge {
		t.Errorf("expected REQUEST_TOO_LARGE for oversized chunked body, got %v", apiErr)
	}
}

func TestSizeValidator_ZeroLimitDisabled(t *testing.T) {
	sv := newTestSizeValidator(0, &recordingSink{})
	req := newTestSecurityRequest(http.MethodPost, "/api/sites", []byte(strings.Repeat("x", 4096)), "10.0.0.1")

	if apiErr := sv.Check(context.Background(), req); apiErr != nil {
		t.Errorf("disabled validator refused: %v", apiErr)
	}
}
