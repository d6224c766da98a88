package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sitegate/gatekeeper/internal/core/constants"
)

func TestHeaderPolicy_Production(t *testing.T) {
	hp := NewHeaderPolicy(constants.EnvironmentProduction, []string{"https://app.sitegate.io"}, []string{"https://api.sitegate.io"})
	h := hp.HeadersFor(constants.EnvironmentProduction)

	if h.Get(constants.HeaderHSTS) != HSTSValue {
		t.Errorf("expected HSTS in production, got %q", h.Get(constants.HeaderHSTS))
	}
	csp := h.Get(constants.HeaderCSP)
	if strings.Contains(csp, "'unsafe-eval'") {
		t.Error("production CSP must not allow unsafe-eval")
	}
	if !strings.HasSuffix(csp, "; upgrade-insecure-requests") {
		t.Errorf("expected bare upgrade-insecure-requests directive, got %q", csp)
	}
	if !strings.Contains(csp, "connect-src 'self' https://api.sitegate.io;") {
		t.Errorf("expected configured connect-src, got %q", csp)
	}
	for header, want := range map[string]string{
		constants.HeaderContentTypeOptions: "nosniff",
		constants.HeaderFrameOptions:       "DENY",
		constants.HeaderXSSProtection:      "1; mode=block",
		constants.HeaderReferrerPolicy:     "strict-origin-when-cross-origin",
	} {
		if got := h.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestHeaderPolicy_Development(t *testing.T) {
	hp := NewHeaderPolicy(constants.EnvironmentDevelopment, nil, nil)
	h := hp.HeadersFor(constants.EnvironmentDevelopment)

	if h.Get(constants.HeaderHSTS) != "" {
		t.Error("HSTS must only be sent in production")
	}
	csp := h.Get(constants.HeaderCSP)
	if !strings.Contains(csp, "'unsafe-eval'") || !strings.Contains(csp, "ws://localhost:*") {
		t.Errorf("development CSP should be widened, got %q", csp)
	}
	if strings.Contains(csp, "upgrade-insecure-requests") {
		t.Error("development CSP must not upgrade requests")
	}
}

func TestHeaderPolicy_CORS(t *testing.T) {
	hp := NewHeaderPolicy(constants.EnvironmentProduction, []string{"https://app.sitegate.io/"}, nil)

	h, ok := hp.CORSHeadersFor("https://app.sitegate.io")
	if !ok {
		t.Fatal("allow-listed origin refused")
	}
	if h.Get(constants.HeaderACAllowOrigin) != "https://app.sitegate.io" {
		t.Errorf("origin must be echoed, got %q", h.Get(constants.HeaderACAllowOrigin))
	}
	if h.Get(constants.HeaderACAllowCredentials) != "true" || h.Get(constants.HeaderACMaxAge) != "86400" {
		t.Error("missing credentials or max-age")
	}
	if !strings.Contains(h.Get(constants.HeaderACAllowHeaders), constants.HeaderSignature) {
		t.Error("signing headers must be allowed")
	}

	if _, ok := hp.CORSHeadersFor("https://evil.example"); ok {
		t.Error("unknown origin must get no CORS headers")
	}
	if _, ok := hp.CORSHeadersFor("http://localhost:3000"); ok {
		t.Error("dev origins are not allowed in production")
	}
}

func TestHeaderPolicy_DevOriginsAllowed(t *testing.T) {
	hp := NewHeaderPolicy(constants.EnvironmentDevelopment, nil, nil)
	if _, ok := hp.CORSHeadersFor("http://localhost:3000"); !ok {
		t.Error("localhost:3000 should be allowed in development")
	}
}

func TestHeaderPolicy_Apply(t *testing.T) {
	hp := NewHeaderPolicy(constants.EnvironmentProduction, []string{"https://app.sitegate.io"}, nil)

	rec := httptest.NewRecorder()
	hp.Apply(rec.Header(), "https://evil.example")
	if rec.Header().Get(constants.HeaderACAllowOrigin) != "" {
		t.Error("no ACAO for unknown origin")
	}
	if rec.Header().Get(constants.HeaderCSP) == "" || rec.Header().Get(constants.HeaderVary) != constants.HeaderOrigin {
		t.Error("security headers and Vary must always be set")
	}

	// mutating a response must not leak into the cached set
	rec.Header().Set(constants.HeaderCSP, "tampered")
	other := httptest.NewRecorder()
	hp.Apply(other.Header(), "")
	if other.Header().Get(constants.HeaderCSP) == "tampered" {
		t.Error("cached headers were mutated")
	}
}

func TestIsPreflight(t *testing.T) {
	r := httptest.NewRequest(http.MethodOptions, "/api/sites", nil)
	if IsPreflight(r) {
		t.Error("OPTIONS without Origin is not a preflight")
	}
	r.Header.Set(constants.HeaderOrigin, "https://app.sitegate.io")
	r.Header.Set(constants.HeaderAccessControlRequestMethod, http.MethodPost)
	if !IsPreflight(r) {
		t.Error("expected preflight")
	}
}

func TestBuildCSPHeader_BareDirective(t *testing.T) {
	got := buildCSPHeader([]cspDirective{
		{"default-src", []string{"'self'"}},
		{name: "block-all-mixed-content"},
	})
	if got != "default-src 'self'; block-all-mixed-content" {
		t.Errorf("unexpected CSP %q", got)
	}
}
