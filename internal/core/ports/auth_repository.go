package ports

import (
	"context"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// AuthRepository defines the interface for viewer account persistence.
type AuthRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
}
