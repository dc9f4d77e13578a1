package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
	"github.com/atelier-portal/portal-sync/internal/pkg/metrics"
)

// clientLockStripes bounds the per-client locks held by one service.
const clientLockStripes = 64

// AssignmentService is the server of record for sector assignments.
//
// Mutations on one client run one at a time in this process: write, read
// back, mirror, publish. The mirror and the push always carry the row the
// store holds after the write, so overlapping writers converge on it.
type AssignmentService struct {
	repo    ports.AssignmentRepository
	clients ports.ClientRepository
	bus     ports.PushBus
	log     zerolog.Logger
	now     func() time.Time

	locks [clientLockStripes]sync.Mutex
}

func NewAssignmentService(
	repo ports.AssignmentRepository,
	clients ports.ClientRepository,
	bus ports.PushBus,
	log zerolog.Logger,
) *AssignmentService {
	return &AssignmentService{
		repo:    repo,
		clients: clients,
		bus:     bus,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Assign replaces the client's assignment in one atomic write, mirrors the
// stored row onto the client record and pushes it to every subscriber. The
// returned assignment is the stored row.
func (s *AssignmentService) Assign(ctx context.Context, in ports.AssignInput) (*domain.Assignment, error) {
	clientID := strings.TrimSpace(in.ClientID)
	sectorID := strings.TrimSpace(in.SectorID)
	if clientID == "" || sectorID == "" {
		return nil, fmt.Errorf("assign: %w: client and sector are required", domain.ErrInvalidAssignment)
	}

	a := &domain.Assignment{
		ClientID:   clientID,
		SectorID:   sectorID,
		SectorName: strings.TrimSpace(in.SectorName),
		AssignedBy: in.Actor,
		AssignedAt: s.now(),
	}

	mu := s.lockFor(clientID)
	mu.Lock()
	defer mu.Unlock()

	// 1. Single upsert keyed by client_id; concurrent writers resolve last-write-wins.
	if err := s.repo.Replace(ctx, a); err != nil {
		metrics.AssignmentMutationsTotal.WithLabelValues("assign", "error").Inc()
		s.log.Error().Err(err).Str("client_id", clientID).Msg("assignment write failed")
		return nil, fmt.Errorf("assign: %w", err)
	}
	metrics.AssignmentMutationsTotal.WithLabelValues("assign", "ok").Inc()

	// 2. Read back: another process may have written since.
	current := s.current(ctx, clientID, a)

	// 3. Mirror onto the client record (non-fatal; the next assign repairs it).
	s.mirror(ctx, clientID, current.TypeDiagnostic())

	// 4. Full-state push to every viewer of this client.
	s.publish(ctx, domain.AssignmentEvent{ClientID: clientID, Assignment: current.Clone(), At: a.AssignedAt})

	s.log.Info().
		Str("client_id", clientID).
		Str("sector_id", sectorID).
		Str("actor", in.Actor).
		Msg("client assigned")

	if current == nil {
		return a, nil
	}
	return current, nil
}

// Unassign removes the client's assignment and clears the mirror field.
func (s *AssignmentService) Unassign(ctx context.Context, clientID string) error {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return fmt.Errorf("unassign: %w: client is required", domain.ErrInvalidAssignment)
	}

	mu := s.lockFor(clientID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.repo.Delete(ctx, clientID); err != nil {
		metrics.AssignmentMutationsTotal.WithLabelValues("unassign", "error").Inc()
		s.log.Error().Err(err).Str("client_id", clientID).Msg("assignment delete failed")
		return fmt.Errorf("unassign: %w", err)
	}
	metrics.AssignmentMutationsTotal.WithLabelValues("unassign", "ok").Inc()

	current := s.current(ctx, clientID, nil)
	s.mirror(ctx, clientID, current.TypeDiagnostic())
	s.publish(ctx, domain.AssignmentEvent{ClientID: clientID, Assignment: current, At: s.now()})

	s.log.Info().Str("client_id", clientID).Msg("client unassigned")
	return nil
}

// Get returns the client's assignment, or nil when it has none.
func (s *AssignmentService) Get(ctx context.Context, clientID string) (*domain.Assignment, error) {
	a, err := s.repo.FindByClient(ctx, clientID)
	if errors.Is(err, domain.ErrAssignmentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

// Subscribe registers onChange for full-state pushes about clientID.
func (s *AssignmentService) Subscribe(ctx context.Context, clientID string, onChange func(domain.AssignmentEvent)) (ports.Subscription, error) {
	sub, err := s.bus.SubscribeAssignments(ctx, clientID, onChange)
	if err != nil {
		return nil, fmt.Errorf("subscribe assignments: %w", err)
	}
	return sub, nil
}

// GetClient returns the client record including its type_diagnostic mirror.
func (s *AssignmentService) GetClient(ctx context.Context, clientID string) (*domain.ClientRecord, error) {
	c, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// current reads the stored row after a write. On a read failure it falls back
// to what this call wrote.
func (s *AssignmentService) current(ctx context.Context, clientID string, written *domain.Assignment) *domain.Assignment {
	a, err := s.repo.FindByClient(ctx, clientID)
	if errors.Is(err, domain.ErrAssignmentNotFound) {
		return nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("client_id", clientID).Msg("assignment read-back failed")
		return written.Clone()
	}
	return a
}

func (s *AssignmentService) lockFor(clientID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return &s.locks[h.Sum32()%clientLockStripes]
}

func (s *AssignmentService) mirror(ctx context.Context, clientID, value string) {
	if err := s.clients.SetTypeDiagnostic(ctx, clientID, value); err != nil {
		s.log.Warn().Err(err).Str("client_id", clientID).Msg("failed to mirror type_diagnostic")
	}
}

func (s *AssignmentService) publish(ctx context.Context, ev domain.AssignmentEvent) {
	if err := s.bus.PublishAssignment(ctx, ev); err != nil {
		// Push is a latency optimisation; pollers converge on the next refresh.
		s.log.Warn().Err(err).Str("client_id", ev.ClientID).Msg("failed to publish assignment change")
	}
}
