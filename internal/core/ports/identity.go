package ports

import (
	"context"
	"net/http"

	"github.com/sitegate/gatekeeper/internal/core/domain"
)

// Authenticator resolves the caller of a request. A nil user with a nil
// error means the request carries no credentials at all; an error means
// credentials were presented but are not acceptable.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*domain.User, *domain.Profile, error)
}

// SchemaValidator checks a request body against a business schema and
// reports every failing field.
type SchemaValidator interface {
	Validate(ctx context.Context, body []byte) []domain.FieldError
}
