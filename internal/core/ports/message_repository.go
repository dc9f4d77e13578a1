package ports

import (
	"context"
	"time"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// MessageRepository is the append-only message log.
type MessageRepository interface {
	Insert(ctx context.Context, m *domain.Message) error
	// ListUnread returns unread messages for the client, newest first,
	// excluding those sent by the given sender type.
	ListUnread(ctx context.Context, clientID string, exclude domain.SenderType) ([]domain.Message, error)
	// MarkRead flips read to true for the given ids and reports how many rows
	// actually changed. Already-read ids are skipped.
	MarkRead(ctx context.Context, ids []string, at time.Time) (int64, error)
}
