package ports

import (
	"context"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// AppendMessageInput is the insert path used by the chat collaborator.
type AppendMessageInput struct {
	ClientID   string
	SenderType domain.SenderType
	SenderName string
	Body       string
}

// NotificationStore exposes the message log to viewers.
type NotificationStore interface {
	// FetchUnread returns unread messages not sent by the client, newest first.
	FetchUnread(ctx context.Context, clientID string) ([]domain.Message, error)
	// FetchUnreadFor is FetchUnread for an arbitrary audience (admin, seller, client).
	FetchUnreadFor(ctx context.Context, clientID string, audience domain.SenderType) ([]domain.Message, error)
	// MarkRead is idempotent: already-read ids are a no-op.
	MarkRead(ctx context.Context, ids []string) error
	// Subscribe fires once per newly inserted message for the client.
	Subscribe(ctx context.Context, clientID string, onInsert func(domain.Message)) (Subscription, error)
	Append(ctx context.Context, in AppendMessageInput) (*domain.Message, error)
}
