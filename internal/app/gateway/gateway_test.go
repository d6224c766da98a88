package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitegate/gatekeeper/internal/adapter/audit"
	"github.com/sitegate/gatekeeper/internal/adapter/auth"
	"github.com/sitegate/gatekeeper/internal/adapter/security"
	"github.com/sitegate/gatekeeper/internal/adapter/store"
	"github.com/sitegate/gatekeeper/internal/adapter/validation"
	"github.com/sitegate/gatekeeper/internal/adapter/waf"
	"github.com/sitegate/gatekeeper/internal/config"
	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
	"github.com/sitegate/gatekeeper/internal/logger"
	"github.com/sitegate/gatekeeper/theme"
)

const (
	testJWTSecret       = "jwt-test-secret"
	testSignatureSecret = "signature-test-secret"
	testOrigin          = "https://app.example.com"
)

func createTestLogger() *logger.StyledLogger {
	log, _, _ := logger.New(&logger.Config{Level: "error", Theme: "default"})
	return logger.NewStyledLogger(log, theme.Default())
}

type recordingMetrics struct {
	rejections map[string]domain.ErrorCode
	statuses   []int
	mu         sync.Mutex
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{rejections: make(map[string]domain.ErrorCode)}
}

func (m *recordingMetrics) RecordRateLimit(domain.LimitClass, bool) {}
func (m *recordingMetrics) RecordStoreError(string)                 {}
func (m *recordingMetrics) RecordViolation(domain.WAFViolation)     {}

func (m *recordingMetrics) RecordRejection(stage string, code domain.ErrorCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[stage] = code
}

func (m *recordingMetrics) RecordRequest(_ string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

type failingStore struct{}

func (failingStore) Increment(_ context.Context, key string, _ time.Duration) (domain.RateLimitRecord, error) {
	return domain.RateLimitRecord{}, domain.NewStoreError("redis", "increment", key, errors.New("connection refused"))
}

func (failingStore) Get(_ context.Context, key string) (domain.RateLimitRecord, bool, error) {
	return domain.RateLimitRecord{}, false, domain.NewStoreError("redis", "get", key, errors.New("connection refused"))
}

func (failingStore) Name() string { return "redis" }
func (failingStore) Close() error { return nil }

type testGateway struct {
	*Gateway
	sink    *audit.Sink
	metrics *recordingMetrics
	jwt     *auth.JWTAuthenticator
}

func newTestGateway(t *testing.T, counterStore ports.CounterStore) *testGateway {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Signature.Secret = testSignatureSecret
	cfg.Headers.AllowedOrigins = []string{testOrigin}
	require.NoError(t, cfg.Validate())

	log := createTestLogger()
	sink := audit.NewSink(nil, log, audit.Options{RecentEvents: 100})
	metrics := newRecordingMetrics()

	if counterStore == nil {
		counterStore = store.NewMemoryStore(time.Minute)
	}
	sec := security.NewSecurityServicesWithStore(cfg, counterStore, metrics, sink, log)
	engine := waf.NewEngine(waf.Options{}, sec.Metrics, log)
	authenticator := auth.NewJWTAuthenticator(testJWTSecret, cfg.Auth.Issuer, "")

	gw, err := New(Options{
		Security:      sec,
		WAF:           engine,
		Authenticator: authenticator,
		Metrics:       metrics,
		Sink:          sink,
		Logger:        log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close(context.Background()) })

	return &testGateway{Gateway: gw, sink: sink, metrics: metrics, jwt: authenticator}
}

func (tg *testGateway) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := tg.jwt.Issue(auth.Claims{
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func (tg *testGateway) eventCount(eventType domain.SecurityEventType) int64 {
	return tg.sink.Stats().EventsByType[string(eventType)]
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestGateway_StageOrder(t *testing.T) {
	tg := newTestGateway(t, nil)
	assert.Equal(t, []string{
		security.StageSizeLimit,
		security.StageRateLimit,
		StageAuth,
		security.StageUserRateLimit,
		StageRole,
		security.StageSignature,
		waf.StageWAF,
		StageSchema,
	}, tg.Stages())
}

func TestGateway_AuthEndpointRateLimited(t *testing.T) {
	tg := newTestGateway(t, nil)
	h := tg.Wrap("login", ports.RoutePolicy{}, okHandler())

	for i := 0; i < 5; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = "198.51.100.4:5000"
		rec := serve(h, r)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "5", rec.Header().Get(constants.HeaderRateLimitLimit))
		assert.Equal(t, strconv.Itoa(4-i), rec.Header().Get(constants.HeaderRateLimitRemaining))
	}

	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	r.RemoteAddr = "198.51.100.4:5000"
	rec := serve(h, r)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	retryAfter, err := strconv.Atoi(rec.Header().Get(constants.HeaderRetryAfter))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.Equal(t, "0", rec.Header().Get(constants.HeaderRateLimitRemaining))

	body := decodeError(t, rec)
	assert.Equal(t, domain.CodeRateLimited, body.Code)
	assert.Contains(t, body.Message, "15 minutes")
	assert.Equal(t, domain.CodeRateLimited, tg.metrics.rejections[security.StageRateLimit])
	assert.EqualValues(t, 1, tg.eventCount(domain.EventRateLimitExceeded))

	// a different client still has its own budget
	other := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	other.RemoteAddr = "198.51.100.5:5000"
	assert.Equal(t, http.StatusOK, serve(h, other).Code)
}

func TestGateway_WAFBlocksInjection(t *testing.T) {
	tg := newTestGateway(t, nil)
	called := false
	h := tg.Wrap("sites", ports.RoutePolicy{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/sites?name=%27%20OR%201%3D1%20--", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "true", rec.Header().Get(constants.HeaderWAFBlocked))
	assert.Equal(t, "2", rec.Header().Get(constants.HeaderWAFRuleCount))

	body := decodeError(t, rec)
	assert.Equal(t, domain.CodeWAFBlocked, body.Code)
	details, ok := body.Details.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "referenceId")
	assert.NotContains(t, rec.Body.String(), "OR 1=1")

	assert.EqualValues(t, 1, tg.eventCount(domain.EventWAFBlocked))
	assert.Equal(t, domain.CodeWAFBlocked, tg.metrics.rejections[waf.StageWAF])
}

func TestGateway_Signature(t *testing.T) {
	tg := newTestGateway(t, nil)
	policy := ports.RoutePolicy{RequireSignature: true}
	h := tg.Wrap("webhook", policy, okHandler())

	body := []byte(`{"event":"site.updated"}`)
	signed := func(nonce string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/webhooks/site", bytes.NewReader(body))
		for k, v := range security.Sign(testSignatureSecret, http.MethodPost, "/api/webhooks/site", body, time.Now(), nonce) {
			r.Header[k] = v
		}
		return r
	}

	assert.Equal(t, http.StatusOK, serve(h, signed("nonce-1")).Code)

	replay := serve(h, signed("nonce-1"))
	require.Equal(t, http.StatusUnauthorized, replay.Code)
	assert.Equal(t, domain.CodeInvalidSignature, decodeError(t, replay).Code)

	unsigned := serve(h, httptest.NewRequest(http.MethodPost, "/api/webhooks/site", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, unsigned.Code)

	tampered := signed("nonce-2")
	tampered.Body = io.NopCloser(bytes.NewReader([]byte(`{"event":"site.deleted"}`)))
	assert.Equal(t, http.StatusUnauthorized, serve(h, tampered).Code)

	assert.EqualValues(t, 3, tg.eventCount(domain.EventInvalidSignature))
}

func TestGateway_Authentication(t *testing.T) {
	tg := newTestGateway(t, nil)

	var seen *domain.ApiContext
	h := tg.Wrap("profile", ports.RoutePolicy{RequireAuth: true}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	anon := serve(h, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	require.Equal(t, http.StatusUnauthorized, anon.Code)
	assert.Equal(t, domain.CodeUnauthorized, decodeError(t, anon).Code)

	r := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	r.Header.Set(constants.HeaderAuthorization, tg.token(t, "user-42", "editor"))
	require.Equal(t, http.StatusOK, serve(h, r).Code)
	require.NotNil(t, seen)
	assert.Equal(t, "user-42", seen.UserID())
	assert.Equal(t, "editor", seen.Role())
}

func TestGateway_InvalidTokenOnAnonymousRoute(t *testing.T) {
	tg := newTestGateway(t, nil)
	h := tg.Wrap("public", ports.RoutePolicy{}, okHandler())

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/api/public", nil)).Code)

	r := httptest.NewRequest(http.MethodGet, "/api/public", nil)
	r.Header.Set(constants.HeaderAuthorization, "Bearer not-a-token")
	rec := serve(h, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.EqualValues(t, 1, tg.eventCount(domain.EventUnauthorized))
}

func TestGateway_Roles(t *testing.T) {
	tg := newTestGateway(t, nil)
	h := tg.Wrap("admin", ports.RoutePolicy{AllowedRoles: []string{"admin"}}, okHandler())

	tests := []struct {
		name   string
		role   string
		anon   bool
		status int
	}{
		{name: "anonymous", anon: true, status: http.StatusUnauthorized},
		{name: "wrong role", role: "viewer", status: http.StatusForbidden},
		{name: "no role", role: "", status: http.StatusForbidden},
		{name: "admin", role: "admin", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			if !tt.anon {
				r.Header.Set(constants.HeaderAuthorization, tg.token(t, "user-"+tt.name, tt.role))
			}
			assert.Equal(t, tt.status, serve(h, r).Code)
		})
	}
	assert.EqualValues(t, 2, tg.eventCount(domain.EventForbidden))
}

func TestGateway_SchemaValidation(t *testing.T) {
	tg := newTestGateway(t, nil)
	schema, err := validation.NewSchemaValidator("site", config.SchemaDef{Fields: []config.FieldDef{
		{Path: "name", Type: "string", Required: true, MinLength: 2},
		{Path: "plan", Type: "string", Enum: []string{"free", "pro"}},
	}})
	require.NoError(t, err)

	var received []byte
	h := tg.Wrap("sites", ports.RoutePolicy{Schema: schema}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/sites", bytes.NewBufferString(`{"plan":"gold"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, domain.CodeValidationError, body.Code)
	details, ok := body.Details.([]any)
	require.True(t, ok)
	assert.Len(t, details, 2)
	assert.Nil(t, received)

	valid := `{"name":"Main site","plan":"pro"}`
	rec = serve(h, httptest.NewRequest(http.MethodPost, "/api/sites", bytes.NewBufferString(valid)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, valid, string(received), "handler must see the body the stages inspected")
}

func TestGateway_RequestTooLarge(t *testing.T) {
	tg := newTestGateway(t, nil)
	h := tg.Wrap("upload", ports.RoutePolicy{}, okHandler())

	r := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(make([]byte, 16)))
	r.ContentLength = 11 << 20
	rec := serve(h, r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, domain.CodeRequestTooLarge, decodeError(t, rec).Code)
	// refused before any counter was touched
	assert.Empty(t, rec.Header().Get(constants.HeaderRateLimitLimit))
}

func TestGateway_HandlerFailures(t *testing.T) {
	tg := newTestGateway(t, nil)

	t.Run("panic", func(t *testing.T) {
		h := tg.Handle("boom", ports.RoutePolicy{}, func(w http.ResponseWriter, r *http.Request) error {
			panic("database password is hunter2")
		})
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/boom", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, domain.CodeInternalError, body.Code)
		assert.Equal(t, domain.ErrInternal.Message, body.Message)
		assert.NotContains(t, rec.Body.String(), "hunter2")
	})

	t.Run("plain error", func(t *testing.T) {
		h := tg.Handle("fail", ports.RoutePolicy{}, func(w http.ResponseWriter, r *http.Request) error {
			return errors.New("upstream exploded")
		})
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/fail", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "exploded")
	})

	t.Run("api error", func(t *testing.T) {
		h := tg.Handle("forbidden", ports.RoutePolicy{}, func(w http.ResponseWriter, r *http.Request) error {
			return domain.ErrForbidden.WithMessage("Site belongs to another organisation")
		})
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/sites/9", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Site belongs to another organisation", decodeError(t, rec).Message)
	})

	assert.EqualValues(t, 2, tg.eventCount(domain.EventInternalError))
}

func TestGateway_SecurityHeaders(t *testing.T) {
	tg := newTestGateway(t, nil)
	h := tg.Wrap("sites", ports.RoutePolicy{}, okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	r.Header.Set(constants.HeaderOrigin, testOrigin)
	rec := serve(h, r)

	assert.Equal(t, "nosniff", rec.Header().Get(constants.HeaderContentTypeOptions))
	assert.Equal(t, "DENY", rec.Header().Get(constants.HeaderFrameOptions))
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderCSP))
	assert.Equal(t, testOrigin, rec.Header().Get(constants.HeaderACAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(constants.HeaderACAllowCredentials))

	other := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	other.Header.Set(constants.HeaderOrigin, "https://evil.example.net")
	rec = serve(h, other)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(constants.HeaderACAllowOrigin))
	assert.Equal(t, "nosniff", rec.Header().Get(constants.HeaderContentTypeOptions))
}

func TestGateway_HeadersOnRefusal(t *testing.T) {
	tg := newTestGateway(t, nil)
	h := tg.Wrap("profile", ports.RoutePolicy{RequireAuth: true}, okHandler())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get(constants.HeaderContentTypeOptions))
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderRateLimitLimit))

	requestID := rec.Header().Get(constants.HeaderXRequestID)
	_, err := uuid.Parse(requestID)
	require.NoError(t, err)
	assert.Equal(t, requestID, decodeError(t, rec).RequestID)
}

func TestGateway_Preflight(t *testing.T) {
	tg := newTestGateway(t, nil)
	called := false
	h := tg.Wrap("sites", ports.RoutePolicy{RequireAuth: true}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest(http.MethodOptions, "/api/sites", nil)
	r.Header.Set(constants.HeaderOrigin, testOrigin)
	r.Header.Set(constants.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := serve(h, r)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, called)
	assert.Equal(t, testOrigin, rec.Header().Get(constants.HeaderACAllowOrigin))
	assert.Equal(t, security.CORSAllowMethods, rec.Header().Get(constants.HeaderACAllowMethods))
	assert.Empty(t, rec.Header().Get(constants.HeaderRateLimitLimit), "preflight is not counted")
}

func TestGateway_RequestIDUnique(t *testing.T) {
	tg := newTestGateway(t, nil)
	h := tg.Wrap("sites", ports.RoutePolicy{}, okHandler())

	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		r := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
		r.Header.Set(constants.HeaderXRequestID, "client-chosen")
		id := serve(h, r).Header().Get(constants.HeaderXRequestID)
		assert.NotEqual(t, "client-chosen", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 20)
}

func TestGateway_StoreFailureFailsOpen(t *testing.T) {
	tg := newTestGateway(t, failingStore{})
	h := tg.Wrap("login", ports.RoutePolicy{}, okHandler())

	for i := 0; i < 10; i++ {
		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "5", rec.Header().Get(constants.HeaderRateLimitRemaining))
	}
	assert.EqualValues(t, 10, tg.eventCount(domain.EventStoreFailure))
}

func TestGateway_AccessAudit(t *testing.T) {
	tg := newTestGateway(t, nil)
	h := tg.Wrap("reports", ports.RoutePolicy{AuditAccess: true}, okHandler())
	quiet := tg.Wrap("sites", ports.RoutePolicy{}, okHandler())

	serve(h, httptest.NewRequest(http.MethodGet, "/api/reports/q3", nil))
	serve(quiet, httptest.NewRequest(http.MethodGet, "/api/sites", nil))

	assert.EqualValues(t, 1, tg.eventCount(domain.EventAPIAccess))
	recent := tg.sink.Stats().RecentEvents
	require.NotEmpty(t, recent)
	assert.Equal(t, "/api/reports/q3", recent[0].Details["path"])
}

func TestGateway_RecordsRequests(t *testing.T) {
	tg := newTestGateway(t, nil)
	h := tg.Wrap("profile", ports.RoutePolicy{RequireAuth: true}, okHandler())

	serve(h, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	r := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	r.Header.Set(constants.HeaderAuthorization, tg.token(t, "user-1", ""))
	serve(h, r)

	tg.metrics.mu.Lock()
	defer tg.metrics.mu.Unlock()
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusOK}, tg.metrics.statuses)
	assert.Equal(t, domain.CodeUnauthorized, tg.metrics.rejections[StageAuth])
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{Logger: createTestLogger()})
	assert.Error(t, err)
}
