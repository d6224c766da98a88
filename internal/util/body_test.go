package util

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCloneBody_RestoresStream(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/sites", strings.NewReader(`{"name":"North yard"}`))

	data, err := CloneBody(req, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"name":"North yard"}` {
		t.Errorf("unexpected body %q", data)
	}

	again, _ := io.ReadAll(req.Body)
	if string(again) != string(data) {
		t.Errorf("handler should see the same body, got %q", again)
	}
}

func TestCloneBody_OverLimit(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/sites", strings.NewReader(strings.Repeat("a", 20)))

	data, err := CloneBody(req, 10)
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		t.Fatalf("expected MaxBytesError, got %v", err)
	}
	if maxErr.Limit != 10 {
		t.Errorf("expected limit 10, got %d", maxErr.Limit)
	}
	if len(data) != 11 {
		t.Errorf("expected 11 bytes read, got %d", len(data))
	}
}

func TestCloneBody_ExactlyAtLimit(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/sites", strings.NewReader(strings.Repeat("a", 10)))
	if _, err := CloneBody(req, 10); err != nil {
		t.Errorf("body at the limit should be accepted, got %v", err)
	}
}

func TestCloneBody_NoBody(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/sites", nil)
	data, err := CloneBody(req, 10)
	if err != nil || data != nil {
		t.Errorf("expected nil, nil for empty body, got %q, %v", data, err)
	}
}
