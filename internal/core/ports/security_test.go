package ports

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitegate/gatekeeper/internal/core/domain"
)

type mockStage struct {
	name      string
	refuse    *domain.ApiError
	callCount int
}

func (m *mockStage) Name() string {
	return m.name
}

func (m *mockStage) Check(ctx context.Context, req *SecurityRequest) *domain.ApiError {
	m.callCount++
	return m.refuse
}

func TestSecurityChain_AllStagesPass(t *testing.T) {
	first := &mockStage{name: "first"}
	second := &mockStage{name: "second"}
	chain := NewSecurityChain(first, second)

	req := NewSecurityRequest(httptest.NewRequest(http.MethodGet, "/api/sites", nil), &domain.ApiContext{}, RoutePolicy{}, 1024)
	apiErr, stage := chain.Check(context.Background(), req)

	assert.Nil(t, apiErr)
	assert.Empty(t, stage)
	assert.Equal(t, 1, first.callCount)
	assert.Equal(t, 1, second.callCount)
	assert.Len(t, chain.GetStages(), 2)
}

func TestSecurityChain_StopsAtFirstRefusal(t *testing.T) {
	first := &mockStage{name: "rate_limit", refuse: domain.ErrRateLimited}
	second := &mockStage{name: "waf"}
	chain := NewSecurityChain(first, second)

	req := NewSecurityRequest(httptest.NewRequest(http.MethodGet, "/api/sites", nil), &domain.ApiContext{}, RoutePolicy{}, 1024)
	apiErr, stage := chain.Check(context.Background(), req)

	require.NotNil(t, apiErr)
	assert.Equal(t, domain.CodeRateLimited, apiErr.Code)
	assert.Equal(t, "rate_limit", stage)
	assert.Equal(t, 0, second.callCount, "stages after a refusal must not run")
}

func TestSecurityRequest_BodyIsReadOnceAndRestored(t *testing.T) {
	payload := []byte(`{"name":"Site A"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/sites", bytes.NewReader(payload))
	req := NewSecurityRequest(r, &domain.ApiContext{}, RoutePolicy{}, 1024)

	first, err := req.Body()
	require.NoError(t, err)
	second, err := req.Body()
	require.NoError(t, err)
	assert.Equal(t, payload, first)
	assert.Equal(t, first, second)

	downstream, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, downstream, "handler must still see the full body")
}
