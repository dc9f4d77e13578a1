package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// PresenceStore keeps heartbeats in memory and forgets them after ttl.
type PresenceStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]presenceEntry
}

type presenceEntry struct {
	p       domain.Presence
	expires time.Time
}

func NewPresenceStore(ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &PresenceStore{ttl: ttl, now: time.Now, seen: make(map[string]presenceEntry)}
}

func (s *PresenceStore) Heartbeat(_ context.Context, p domain.Presence) error {
	if p.ViewerID == "" {
		return errors.New("presence: viewer id is required")
	}
	s.mu.Lock()
	s.seen[p.ViewerID] = presenceEntry{p: p, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

// Lookup returns nil, nil for viewers that never beat or have gone quiet.
func (s *PresenceStore) Lookup(_ context.Context, viewerID string) (*domain.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.seen[viewerID]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.seen, viewerID)
		return nil, nil
	}
	p := e.p
	return &p, nil
}
