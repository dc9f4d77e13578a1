package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

const defaultPresenceTTL = 90 * time.Second

// PresenceStore keeps one expiring key per open viewer.
// Key format: presence:<viewer_id>
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceStore wraps client. A non-positive ttl falls back to 90s.
func NewPresenceStore(client *redis.Client, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &PresenceStore{client: client, ttl: ttl}
}

// Heartbeat refreshes the viewer's presence key.
func (p *PresenceStore) Heartbeat(ctx context.Context, pr domain.Presence) error {
	if pr.ViewerID == "" {
		return fmt.Errorf("presence heartbeat: empty viewer id")
	}
	payload, err := json.Marshal(pr)
	if err != nil {
		return fmt.Errorf("presence encode: %w", err)
	}
	if err := p.client.Set(ctx, presenceKey(pr.ViewerID), payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	return nil
}

// Lookup returns nil, nil when the viewer has not been seen within the TTL.
func (p *PresenceStore) Lookup(ctx context.Context, viewerID string) (*domain.Presence, error) {
	raw, err := p.client.Get(ctx, presenceKey(viewerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("presence lookup: %w", err)
	}
	var pr domain.Presence
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("presence decode: %w", err)
	}
	return &pr, nil
}

func presenceKey(viewerID string) string {
	return "presence:" + viewerID
}
