// Package viewer holds the per-viewer state a dashboard keeps while it is
// open: the optimistic assignment widget, the notification list with its
// dedup set, and the read-state reconciliation. AssignmentSync, DedupEngine
// and Reconciler are plain state machines with no locking; Session wraps them
// with the poll loop, push subscriptions and a mutex.
package viewer

import (
	"github.com/google/uuid"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// SyncState is the lifecycle of the assignment widget.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncToggling
	SyncConfirmed
	SyncRolledBack
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncToggling:
		return "toggling"
	case SyncConfirmed:
		return "confirmed"
	case SyncRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// MutationKind is the store call a toggle translates to.
type MutationKind int

const (
	MutationAssign MutationKind = iota + 1
	MutationUnassign
)

func (k MutationKind) String() string {
	if k == MutationUnassign {
		return "unassign"
	}
	return "assign"
}

// Mutation is the request issued for one toggle. RequestID ties the eventual
// result back to the toggle that produced it.
type Mutation struct {
	RequestID  string
	Kind       MutationKind
	ClientID   string
	SectorID   string
	SectorName string
}

// AssignmentSync tracks what the store last confirmed and what the viewer
// displays while a mutation is in flight.
type AssignmentSync struct {
	clientID string

	confirmed *domain.Assignment
	displayed *domain.Assignment
	snapshot  *domain.Assignment
	pendingID string
	state     SyncState

	newID func() string
}

// NewAssignmentSync starts Idle, displaying initial (nil means unassigned).
func NewAssignmentSync(clientID string, initial *domain.Assignment) *AssignmentSync {
	return &AssignmentSync{
		clientID:  clientID,
		confirmed: initial.Clone(),
		displayed: initial.Clone(),
		newID:     uuid.NewString,
	}
}

// Toggle applies the optimistic value right away and returns the request the
// caller must send. Toggling the displayed sector unassigns it; any other
// sector replaces it.
func (s *AssignmentSync) Toggle(sectorID, sectorName string) Mutation {
	m := Mutation{
		RequestID:  s.newID(),
		ClientID:   s.clientID,
		SectorID:   sectorID,
		SectorName: sectorName,
	}

	// A toggle on top of an unresolved one keeps the older snapshot: the
	// display it would capture was never confirmed.
	if s.pendingID == "" {
		s.snapshot = s.displayed.Clone()
	}
	if s.displayed != nil && s.displayed.SectorID == sectorID {
		m.Kind = MutationUnassign
		s.displayed = nil
	} else {
		m.Kind = MutationAssign
		s.displayed = &domain.Assignment{ClientID: s.clientID, SectorID: sectorID, SectorName: sectorName}
	}
	s.pendingID = m.RequestID
	s.state = SyncToggling
	return m
}

// OnRemoteChange records a pushed or polled assignment. While a toggle is in
// flight only confirmed moves; the display waits for that toggle to resolve.
func (s *AssignmentSync) OnRemoteChange(a *domain.Assignment) {
	s.confirmed = a.Clone()
	if s.pendingID != "" {
		return
	}
	s.displayed = a.Clone()
	s.state = SyncIdle
}

// Resolve applies the outcome of the request identified by requestID and
// reports whether the display was rolled back. A superseded request that
// succeeded refreshes confirmed and becomes the rollback target of the
// request still pending.
func (s *AssignmentSync) Resolve(requestID string, result *domain.Assignment, err error) bool {
	if requestID != s.pendingID {
		if err == nil {
			s.confirmed = result.Clone()
			if s.pendingID != "" {
				s.snapshot = result.Clone()
			}
		}
		return false
	}

	s.pendingID = ""
	if err != nil {
		s.displayed = s.snapshot
		s.snapshot = nil
		s.state = SyncRolledBack
		return true
	}
	s.confirmed = result.Clone()
	s.displayed = result.Clone()
	s.snapshot = nil
	s.state = SyncConfirmed
	return false
}

// Displayed returns a copy of what the widget shows.
func (s *AssignmentSync) Displayed() *domain.Assignment { return s.displayed.Clone() }

// Confirmed returns a copy of the last store-confirmed assignment.
func (s *AssignmentSync) Confirmed() *domain.Assignment { return s.confirmed.Clone() }

func (s *AssignmentSync) State() SyncState { return s.state }

// Pending reports whether a toggle is awaiting its result.
func (s *AssignmentSync) Pending() bool { return s.pendingID != "" }
