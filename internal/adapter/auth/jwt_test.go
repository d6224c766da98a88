package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret"

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestJWTAuthenticator_NoCredentials(t *testing.T) {
	a := NewJWTAuthenticator(testSecret, "", "")

	user, profile, err := a.Authenticate(context.Background(), bearerRequest(""))
	assert.NoError(t, err)
	assert.Nil(t, user)
	assert.Nil(t, profile)
}

func TestJWTAuthenticator_ValidToken(t *testing.T) {
	a := NewJWTAuthenticator(testSecret, "sitegate", "gatekeeper")

	token, err := a.Issue(Claims{
		Email:          "foreman@example.com",
		TenantID:       "tenant-1",
		Role:           "manager",
		OrganizationID: "org-7",
		SiteIDs:        []string{"site-1", "site-2"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-42",
		},
	})
	require.NoError(t, err)

	user, profile, err := a.Authenticate(context.Background(), bearerRequest(token))
	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotNil(t, profile)

	assert.Equal(t, "user-42", user.ID)
	assert.Equal(t, "foreman@example.com", user.Email)
	assert.Equal(t, "tenant-1", user.TenantID)
	assert.Equal(t, "manager", profile.Role)
	assert.Equal(t, "org-7", profile.OrganizationID)
	assert.Equal(t, []string{"site-1", "site-2"}, profile.SiteIDs)
}

func TestJWTAuthenticator_TokenWithoutProfile(t *testing.T) {
	a := NewJWTAuthenticator(testSecret, "", "")

	token, err := a.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	require.NoError(t, err)

	user, profile, err := a.Authenticate(context.Background(), bearerRequest(token))
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Nil(t, profile)
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a := NewJWTAuthenticator(testSecret, "sitegate", "")
	other := NewJWTAuthenticator("another-secret", "sitegate", "")

	expired, err := a.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	require.NoError(t, err)

	wrongKey, err := other.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	require.NoError(t, err)

	wrongIssuer, err := a.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "someone-else"}})
	require.NoError(t, err)

	noSubject, err := a.Issue(Claims{Role: "admin"})
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"expired", expired, ErrExpiredToken},
		{"wrong key", wrongKey, ErrInvalidToken},
		{"wrong issuer", wrongIssuer, ErrInvalidToken},
		{"no subject", noSubject, ErrMissingSubject},
		{"alg none", unsigned, ErrInvalidToken},
		{"garbage", "not-a-token", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, _, err := a.Authenticate(context.Background(), bearerRequest(tt.token))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, user)
		})
	}
}

func TestJWTAuthenticator_MalformedHeader(t *testing.T) {
	a := NewJWTAuthenticator(testSecret, "", "")

	r := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	_, _, err := a.Authenticate(context.Background(), r)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestJWTAuthenticator_NoSecret(t *testing.T) {
	a := NewJWTAuthenticator("", "", "")

	_, _, err := a.Authenticate(context.Background(), bearerRequest("anything"))
	assert.ErrorIs(t, err, ErrSecretNotSet)

	_, err = a.Issue(Claims{})
	assert.ErrorIs(t, err, ErrSecretNotSet)
}
