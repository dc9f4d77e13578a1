package ports

import (
	"context"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// AssignmentRepository persists the single active assignment per client.
type AssignmentRepository interface {
	// Replace atomically upserts the assignment keyed by client_id, so a
	// reader sees either the previous row or the new one, never zero or two.
	Replace(ctx context.Context, a *domain.Assignment) error
	// Delete removes the client's assignment. A missing row is not an error.
	Delete(ctx context.Context, clientID string) error
	// FindByClient returns domain.ErrAssignmentNotFound when the client is unassigned.
	FindByClient(ctx context.Context, clientID string) (*domain.Assignment, error)
}

// ClientRepository reads client records and writes their type_diagnostic mirror.
type ClientRepository interface {
	FindByID(ctx context.Context, clientID string) (*domain.ClientRecord, error)
	SetTypeDiagnostic(ctx context.Context, clientID, value string) error
}
