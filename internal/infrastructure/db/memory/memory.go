// Package memory holds map-backed repositories for local development and
// integration tests. They satisfy the same ports as the Mongo repositories.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// AssignmentRepository keeps one assignment per client.
type AssignmentRepository struct {
	mu   sync.RWMutex
	rows map[string]domain.Assignment
}

func NewAssignmentRepository() *AssignmentRepository {
	return &AssignmentRepository{rows: make(map[string]domain.Assignment)}
}

func (r *AssignmentRepository) Replace(_ context.Context, a *domain.Assignment) error {
	r.mu.Lock()
	r.rows[a.ClientID] = *a
	r.mu.Unlock()
	return nil
}

func (r *AssignmentRepository) Delete(_ context.Context, clientID string) error {
	r.mu.Lock()
	delete(r.rows, clientID)
	r.mu.Unlock()
	return nil
}

func (r *AssignmentRepository) FindByClient(_ context.Context, clientID string) (*domain.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.rows[clientID]
	if !ok {
		return nil, domain.ErrAssignmentNotFound
	}
	return &a, nil
}

// ClientRepository is seeded with known client ids.
type ClientRepository struct {
	mu      sync.RWMutex
	clients map[string]domain.ClientRecord
}

func NewClientRepository(seed ...domain.ClientRecord) *ClientRepository {
	r := &ClientRepository{clients: make(map[string]domain.ClientRecord)}
	for _, c := range seed {
		r.clients[c.ID] = c
	}
	return r
}

// Upsert adds or replaces a client record.
func (r *ClientRepository) Upsert(c domain.ClientRecord) {
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()
}

func (r *ClientRepository) FindByID(_ context.Context, clientID string) (*domain.ClientRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	return &c, nil
}

func (r *ClientRepository) SetTypeDiagnostic(_ context.Context, clientID, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return domain.ErrClientNotFound
	}
	c.TypeDiagnostic = value
	c.UpdatedAt = time.Now().UTC()
	r.clients[clientID] = c
	return nil
}

// MessageRepository is an append-only slice of messages.
type MessageRepository struct {
	mu   sync.RWMutex
	msgs []domain.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{}
}

func (r *MessageRepository) Insert(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, *m)
	r.mu.Unlock()
	return nil
}

func (r *MessageRepository) ListUnread(_ context.Context, clientID string, exclude domain.SenderType) ([]domain.Message, error) {
	r.mu.RLock()
	out := make([]domain.Message, 0)
	for _, m := range r.msgs {
		if m.ClientID == clientID && m.NotifiesAudience(exclude) {
			out = append(out, m)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MessageRepository) MarkRead(_ context.Context, ids []string, at time.Time) (int64, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.msgs {
		if _, ok := want[r.msgs[i].ID]; !ok || r.msgs[i].Read {
			continue
		}
		readAt := at.UTC()
		r.msgs[i].Read = true
		r.msgs[i].ReadAt = &readAt
		n++
	}
	return n, nil
}
