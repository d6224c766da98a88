package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteRegistry_WireUp(t *testing.T) {
	reg := NewRouteRegistry(nil)

	reg.Register("/internal/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), "Health check", http.MethodGet)
	reg.RegisterProtected("/api/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}), "Upstream API", "ANY")

	routes := reg.GetRoutes()
	require.Len(t, routes, 2)
	assert.False(t, routes["/internal/health"].Protected)
	assert.True(t, routes["/api/"].Protected)
	assert.Less(t, routes["/internal/health"].Order, routes["/api/"].Order)

	mux := http.NewServeMux()
	reg.WireUp(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sites", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
