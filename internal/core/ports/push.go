package ports

import (
	"context"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// Subscription is a live push registration.
type Subscription interface {
	// Done is closed when the subscription ends, either through Close or
	// because the underlying channel disconnected.
	Done() <-chan struct{}
	Close() error
}

// PushBus fans out full-row change events keyed by client_id. Delivery is
// at-least-once and unordered relative to polling.
type PushBus interface {
	PublishAssignment(ctx context.Context, ev domain.AssignmentEvent) error
	PublishMessage(ctx context.Context, m domain.Message) error
	SubscribeAssignments(ctx context.Context, clientID string, fn func(domain.AssignmentEvent)) (Subscription, error)
	SubscribeMessages(ctx context.Context, clientID string, fn func(domain.Message)) (Subscription, error)
}

// PresenceTracker records viewer heartbeats.
type PresenceTracker interface {
	Heartbeat(ctx context.Context, p domain.Presence) error
	Lookup(ctx context.Context, viewerID string) (*domain.Presence, error)
}
