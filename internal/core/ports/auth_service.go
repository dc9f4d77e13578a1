package ports

import (
	"context"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// AuthService backs the /auth endpoints.
type AuthService interface {
	// Register creates a viewer account; client accounts carry a client_id.
	Register(ctx context.Context, username, password, email, role, clientID string) (*domain.User, error)
	// Login returns a signed token and the account it was issued for.
	Login(ctx context.Context, username, password string) (string, *domain.User, error)
}
