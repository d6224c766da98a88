package security

import (
	"net/http"
	"strings"

	"github.com/sitegate/gatekeeper/internal/core/constants"
)

const (
	HSTSValue              = "max-age=31536000; includeSubDomains; preload"
	PermissionsPolicyValue = "camera=(), microphone=(), geolocation=(self), payment=(), usb=()"
	CORSMaxAge             = "86400"
	CORSAllowMethods       = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
)

var (
	corsAllowHeaders = strings.Join([]string{
		"Content-Type",
		constants.HeaderAuthorization,
		constants.HeaderSignature,
		constants.HeaderTimestamp,
		constants.HeaderNonce,
		constants.HeaderXRequestID,
	}, ", ")

	corsExposeHeaders = strings.Join([]string{
		constants.HeaderRateLimitLimit,
		constants.HeaderRateLimitRemaining,
		constants.HeaderRateLimitReset,
		constants.HeaderRetryAfter,
		constants.HeaderXRequestID,
	}, ", ")

	devOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
)

// cspDirective with no sources renders as a bare keyword.
type cspDirective struct {
	name    string
	sources []string
}

func buildCSPHeader(directives []cspDirective) string {
	parts := make([]string, 0, len(directives))
	for _, d := range directives {
		if len(d.sources) == 0 {
			parts = append(parts, d.name)
			continue
		}
		parts = append(parts, d.name+" "+strings.Join(d.sources, " "))
	}
	return strings.Join(parts, "; ")
}

func cspDirectives(env string, connectSrc []string) []cspDirective {
	dev := env != constants.EnvironmentProduction

	script := []string{"'self'", "'unsafe-inline'"}
	connect := append([]string{"'self'"}, connectSrc...)
	if dev {
		script = append(script, "'unsafe-eval'", "http://localhost:*")
		connect = append(connect, "http://localhost:*", "ws://localhost:*")
	}

	directives := []cspDirective{
		{"default-src", []string{"'self'"}},
		{"script-src", script},
		{"style-src", []string{"'self'", "'unsafe-inline'"}},
		{"img-src", []string{"'self'", "data:", "blob:", "https:"}},
		{"font-src", []string{"'self'", "data:"}},
		{"connect-src", connect},
		{"frame-ancestors", []string{"'none'"}},
		{"object-src", []string{"'none'"}},
		{"base-uri", []string{"'self'"}},
		{"form-action", []string{"'self'"}},
	}
	if !dev {
		directives = append(directives, cspDirective{name: "upgrade-insecure-requests"})
	}
	return directives
}

// HeaderPolicy owns the static security headers and the CORS allow-list.
// Both are computed once; responses get copies.
type HeaderPolicy struct {
	static         http.Header
	allowedOrigins map[string]struct{}
	env            string
	connectSrc     []string
}

func NewHeaderPolicy(env string, allowedOrigins, connectSrc []string) *HeaderPolicy {
	hp := &HeaderPolicy{
		env:            env,
		connectSrc:     connectSrc,
		allowedOrigins: make(map[string]struct{}, len(allowedOrigins)+len(devOrigins)),
	}
	for _, o := range allowedOrigins {
		hp.allowedOrigins[strings.TrimRight(o, "/")] = struct{}{}
	}
	if env != constants.EnvironmentProduction {
		for _, o := range devOrigins {
			hp.allowedOrigins[o] = struct{}{}
		}
	}
	hp.static = hp.HeadersFor(env)
	return hp
}

// HeadersFor builds the security header set for an environment.
func (hp *HeaderPolicy) HeadersFor(env string) http.Header {
	h := make(http.Header, 8)
	h.Set(constants.HeaderCSP, buildCSPHeader(cspDirectives(env, hp.connectSrc)))
	h.Set(constants.HeaderContentTypeOptions, "nosniff")
	h.Set(constants.HeaderFrameOptions, "DENY")
	h.Set(constants.HeaderXSSProtection, "1; mode=block")
	h.Set(constants.HeaderReferrerPolicy, "strict-origin-when-cross-origin")
	h.Set(constants.HeaderPermissionsPolicy, PermissionsPolicyValue)
	if env == constants.EnvironmentProduction {
		h.Set(constants.HeaderHSTS, HSTSValue)
	}
	return h
}

// CORSHeadersFor returns the CORS headers for origin, or false when the
// origin is not allow-listed and nothing should be sent.
func (hp *HeaderPolicy) CORSHeadersFor(origin string) (http.Header, bool) {
	if origin == "" {
		return nil, false
	}
	if _, ok := hp.allowedOrigins[origin]; !ok {
		return nil, false
	}

	h := make(http.Header, 7)
	h.Set(constants.HeaderACAllowOrigin, origin)
	h.Set(constants.HeaderACAllowCredentials, "true")
	h.Set(constants.HeaderACAllowMethods, CORSAllowMethods)
	h.Set(constants.HeaderACAllowHeaders, corsAllowHeaders)
	h.Set(constants.HeaderACExposeHeaders, corsExposeHeaders)
	h.Set(constants.HeaderACMaxAge, CORSMaxAge)
	return h, true
}

// Apply writes the security headers, and CORS headers when origin is
// allowed, onto dst.
func (hp *HeaderPolicy) Apply(dst http.Header, origin string) {
	for k, v := range hp.static {
		dst[k] = append([]string(nil), v...)
	}
	dst.Add(constants.HeaderVary, constants.HeaderOrigin)
	if cors, ok := hp.CORSHeadersFor(origin); ok {
		for k, v := range cors {
			dst[k] = v
		}
	}
}

func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get(constants.HeaderOrigin) != "" &&
		r.Header.Get(constants.HeaderAccessControlRequestMethod) != ""
}
