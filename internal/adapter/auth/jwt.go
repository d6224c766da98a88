package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/core/domain"
)

const (
	bearerPrefix     = "Bearer "
	defaultTokenTTL  = time.Hour
	defaultClockSkew = 30 * time.Second
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")
	ErrMalformedHeader = errors.New("authorization header is not a bearer token")
	ErrSecretNotSet    = errors.New("jwt secret not configured")
	ErrMissingSubject  = errors.New("token has no subject")
)

// Claims is the token payload issued by the identity provider. The
// authorisation attributes ride along so no lookup is needed per request.
type Claims struct {
	Email          string   `json:"email,omitempty"`
	TenantID       string   `json:"tenant,omitempty"`
	Role           string   `json:"role,omitempty"`
	OrganizationID string   `json:"org,omitempty"`
	SiteIDs        []string `json:"sites,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HMAC-signed bearer tokens.
type JWTAuthenticator struct {
	parser   *jwt.Parser
	secret   []byte
	issuer   string
	audience string
}

func NewJWTAuthenticator(secret, issuer, audience string) *JWTAuthenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(defaultClockSkew),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &JWTAuthenticator{
		parser:   jwt.NewParser(opts...),
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}
}

// Authenticate returns (nil, nil, nil) when the request carries no
// Authorization header at all.
func (ja *JWTAuthenticator) Authenticate(_ context.Context, r *http.Request) (*domain.User, *domain.Profile, error) {
	header := r.Header.Get(constants.HeaderAuthorization)
	if header == "" {
		return nil, nil, nil
	}
	if len(ja.secret) == 0 {
		return nil, nil, ErrSecretNotSet
	}
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return nil, nil, ErrMalformedHeader
	}

	claims, err := ja.Parse(strings.TrimSpace(header[len(bearerPrefix):]))
	if err != nil {
		return nil, nil, err
	}

	user := &domain.User{
		ID:       claims.Subject,
		Email:    claims.Email,
		TenantID: claims.TenantID,
	}
	var profile *domain.Profile
	if claims.Role != "" || claims.OrganizationID != "" || len(claims.SiteIDs) > 0 {
		profile = &domain.Profile{
			Role:           claims.Role,
			OrganizationID: claims.OrganizationID,
			SiteIDs:        claims.SiteIDs,
		}
	}
	return user, profile, nil
}

func (ja *JWTAuthenticator) Parse(tokenString string) (*Claims, error) {
	token, err := ja.parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return ja.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// Issue signs claims with HS256. A zero ExpiresAt gets the default lifetime.
func (ja *JWTAuthenticator) Issue(claims Claims) (string, error) {
	if len(ja.secret) == 0 {
		return "", ErrSecretNotSet
	}
	now := time.Now()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(defaultTokenTTL))
	}
	if claims.Issuer == "" {
		claims.Issuer = ja.issuer
	}
	if len(claims.Audience) == 0 && ja.audience != "" {
		claims.Audience = jwt.ClaimStrings{ja.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ja.secret)
}
