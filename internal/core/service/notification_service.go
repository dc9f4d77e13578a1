package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
	"github.com/atelier-portal/portal-sync/internal/pkg/metrics"
)

const maxBodyLength = 4000

// NotificationService is the append-only message log viewers poll and subscribe to.
type NotificationService struct {
	repo ports.MessageRepository
	bus  ports.PushBus
	log  zerolog.Logger
	now  func() time.Time
}

func NewNotificationService(repo ports.MessageRepository, bus ports.PushBus, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		repo: repo,
		bus:  bus,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// FetchUnread returns unread messages that should notify the client.
func (s *NotificationService) FetchUnread(ctx context.Context, clientID string) ([]domain.Message, error) {
	return s.FetchUnreadFor(ctx, clientID, domain.SenderClient)
}

// FetchUnreadFor returns unread messages for clientID, newest first, leaving
// out the ones written by audience itself.
func (s *NotificationService) FetchUnreadFor(ctx context.Context, clientID string, audience domain.SenderType) ([]domain.Message, error) {
	msgs, err := s.repo.ListUnread(ctx, clientID, audience)
	if err != nil {
		return nil, fmt.Errorf("fetch unread: %w", err)
	}
	return msgs, nil
}

// MarkRead flips the read flag of the given messages. Marking an already-read
// message is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, ids []string) error {
	ids = compactIDs(ids)
	if len(ids) == 0 {
		return nil
	}

	changed, err := s.repo.MarkRead(ctx, ids, s.now())
	if err != nil {
		metrics.MarkReadTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("mark read: %w", err)
	}
	metrics.MarkReadTotal.WithLabelValues("ok").Inc()

	s.log.Debug().Int("requested", len(ids)).Int64("changed", changed).Msg("messages marked read")
	return nil
}

// Subscribe registers onInsert for every message appended for clientID.
func (s *NotificationService) Subscribe(ctx context.Context, clientID string, onInsert func(domain.Message)) (ports.Subscription, error) {
	sub, err := s.bus.SubscribeMessages(ctx, clientID, onInsert)
	if err != nil {
		return nil, fmt.Errorf("subscribe messages: %w", err)
	}
	return sub, nil
}

// Append persists a new message and pushes it to the client's subscribers.
func (s *NotificationService) Append(ctx context.Context, in ports.AppendMessageInput) (*domain.Message, error) {
	clientID := strings.TrimSpace(in.ClientID)
	body := strings.TrimSpace(in.Body)
	if clientID == "" || body == "" {
		return nil, fmt.Errorf("append message: %w: client and body are required", domain.ErrInvalidMessage)
	}
	if len(body) > maxBodyLength {
		return nil, fmt.Errorf("append message: %w: body exceeds %d bytes", domain.ErrInvalidMessage, maxBodyLength)
	}
	senderType, err := domain.ParseSenderType(string(in.SenderType))
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	m := &domain.Message{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		SenderType: senderType,
		SenderName: strings.TrimSpace(in.SenderName),
		Body:       body,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Insert(ctx, m); err != nil {
		s.log.Error().Err(err).Str("client_id", clientID).Msg("failed to insert message")
		return nil, fmt.Errorf("append message: %w", err)
	}

	if err := s.bus.PublishMessage(ctx, *m); err != nil {
		s.log.Warn().Err(err).Str("message_id", m.ID).Msg("failed to publish message insert")
	}

	s.log.Info().
		Str("message_id", m.ID).
		Str("client_id", clientID).
		Str("sender_type", string(senderType)).
		Msg("message appended")

	return m, nil
}

// compactIDs drops blanks and duplicates while keeping order.
func compactIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
