package ports

import (
	"context"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// AssignInput carries everything needed to bind a sector to a client.
type AssignInput struct {
	ClientID   string
	SectorID   string
	SectorName string
	Actor      string // username of the viewer issuing the change; optional
}

// AssignmentStore is the server of record for assignments.
type AssignmentStore interface {
	Assign(ctx context.Context, in AssignInput) (*domain.Assignment, error)
	Unassign(ctx context.Context, clientID string) error
	// Get returns nil, nil when the client has no assignment.
	Get(ctx context.Context, clientID string) (*domain.Assignment, error)
	// Subscribe delivers the full assignment state after every mutation.
	Subscribe(ctx context.Context, clientID string, onChange func(domain.AssignmentEvent)) (Subscription, error)
}

// ClientDirectory exposes client records to viewers.
type ClientDirectory interface {
	GetClient(ctx context.Context, clientID string) (*domain.ClientRecord, error)
}
