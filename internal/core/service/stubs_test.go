package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stub repositories
// ---------------------------------------------------------------------------

type stubAssignmentRepo struct {
	rows       map[string]*domain.Assignment
	replaceErr error
	deleteErr  error
	findErr    error
	writes     int
}

func newStubAssignmentRepo() *stubAssignmentRepo {
	return &stubAssignmentRepo{rows: make(map[string]*domain.Assignment)}
}

// Replace mirrors the Mongo upsert keyed by client_id.
func (r *stubAssignmentRepo) Replace(_ context.Context, a *domain.Assignment) error {
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.writes++
	r.rows[a.ClientID] = a.Clone()
	return nil
}

func (r *stubAssignmentRepo) Delete(_ context.Context, clientID string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.writes++
	delete(r.rows, clientID)
	return nil
}

func (r *stubAssignmentRepo) FindByClient(_ context.Context, clientID string) (*domain.Assignment, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	a, ok := r.rows[clientID]
	if !ok {
		return nil, domain.ErrAssignmentNotFound
	}
	return a.Clone(), nil
}

// rowsFor counts the rows held for a client.
func (r *stubAssignmentRepo) rowsFor(clientID string) int {
	n := 0
	for _, a := range r.rows {
		if a.ClientID == clientID {
			n++
		}
	}
	return n
}

type stubClientRepo struct {
	clients map[string]*domain.ClientRecord
	setErr  error
}

func newStubClientRepo(ids ...string) *stubClientRepo {
	r := &stubClientRepo{clients: make(map[string]*domain.ClientRecord)}
	for _, id := range ids {
		r.clients[id] = &domain.ClientRecord{ID: id}
	}
	return r
}

func (r *stubClientRepo) FindByID(_ context.Context, clientID string) (*domain.ClientRecord, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *stubClientRepo) SetTypeDiagnostic(_ context.Context, clientID, value string) error {
	if r.setErr != nil {
		return r.setErr
	}
	c, ok := r.clients[clientID]
	if !ok {
		return domain.ErrClientNotFound
	}
	c.TypeDiagnostic = value
	return nil
}

type stubMessageRepo struct {
	msgs      map[string]*domain.Message
	insertErr error
	markErr   error
	markCalls [][]string
}

func newStubMessageRepo(msgs ...domain.Message) *stubMessageRepo {
	r := &stubMessageRepo{msgs: make(map[string]*domain.Message)}
	for i := range msgs {
		m := msgs[i]
		r.msgs[m.ID] = &m
	}
	return r
}

func (r *stubMessageRepo) Insert(_ context.Context, m *domain.Message) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	clone := *m
	r.msgs[m.ID] = &clone
	return nil
}

func (r *stubMessageRepo) ListUnread(_ context.Context, clientID string, exclude domain.SenderType) ([]domain.Message, error) {
	var out []domain.Message
	for _, m := range r.msgs {
		if m.ClientID == clientID && !m.Read && m.SenderType != exclude {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *stubMessageRepo) MarkRead(_ context.Context, ids []string, at time.Time) (int64, error) {
	r.markCalls = append(r.markCalls, append([]string(nil), ids...))
	if r.markErr != nil {
		return 0, r.markErr
	}
	var changed int64
	for _, id := range ids {
		if m, ok := r.msgs[id]; ok && !m.Read {
			m.Read = true
			readAt := at
			m.ReadAt = &readAt
			changed++
		}
	}
	return changed, nil
}

// ---------------------------------------------------------------------------
// Synchronous push bus
// ---------------------------------------------------------------------------

type stubSub struct {
	done chan struct{}
	once sync.Once
	bus  *stubBus
	id   int
}

func (s *stubSub) Done() <-chan struct{} { return s.done }

func (s *stubSub) Close() error {
	s.once.Do(func() {
		delete(s.bus.assignSubs, s.id)
		delete(s.bus.msgSubs, s.id)
		close(s.done)
	})
	return nil
}

type assignSub struct {
	clientID string
	fn       func(domain.AssignmentEvent)
}

type msgSub struct {
	clientID string
	fn       func(domain.Message)
}

// stubBus delivers events inline so assertions can run right after a call.
type stubBus struct {
	assignSubs map[int]assignSub
	msgSubs    map[int]msgSub
	nextID     int
	publishErr error
	assigned   []domain.AssignmentEvent
	messages   []domain.Message
}

func newStubBus() *stubBus {
	return &stubBus{assignSubs: make(map[int]assignSub), msgSubs: make(map[int]msgSub)}
}

func (b *stubBus) PublishAssignment(_ context.Context, ev domain.AssignmentEvent) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.assigned = append(b.assigned, ev)
	for _, s := range b.assignSubs {
		if s.clientID == ev.ClientID {
			s.fn(ev)
		}
	}
	return nil
}

func (b *stubBus) PublishMessage(_ context.Context, m domain.Message) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.messages = append(b.messages, m)
	for _, s := range b.msgSubs {
		if s.clientID == m.ClientID {
			s.fn(m)
		}
	}
	return nil
}

func (b *stubBus) SubscribeAssignments(_ context.Context, clientID string, fn func(domain.AssignmentEvent)) (ports.Subscription, error) {
	b.nextID++
	b.assignSubs[b.nextID] = assignSub{clientID: clientID, fn: fn}
	return &stubSub{done: make(chan struct{}), bus: b, id: b.nextID}, nil
}

func (b *stubBus) SubscribeMessages(_ context.Context, clientID string, fn func(domain.Message)) (ports.Subscription, error) {
	b.nextID++
	b.msgSubs[b.nextID] = msgSub{clientID: clientID, fn: fn}
	return &stubSub{done: make(chan struct{}), bus: b, id: b.nextID}, nil
}
