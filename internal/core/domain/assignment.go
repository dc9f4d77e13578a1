package domain

import (
	"errors"
	"strings"
	"time"
)

var ErrAssignmentNotFound = errors.New("assignment not found")
var ErrInvalidAssignment = errors.New("invalid assignment")
var ErrClientNotFound = errors.New("client not found")
var ErrForbidden = errors.New("access forbidden")

// ErrStorageUnavailable is returned when the backing store cannot be reached.
// Viewers roll back any optimistic mutation that fails with it.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Assignment binds a single sector (diagnostic tool) to a client.
// At rest there is at most one Assignment per ClientID.
type Assignment struct {
	ClientID   string    `json:"client_id" bson:"client_id"`
	SectorID   string    `json:"sector_id" bson:"sector_id"`
	SectorName string    `json:"sector_name" bson:"sector_name"`
	AssignedBy string    `json:"assigned_by,omitempty" bson:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at" bson:"assigned_at"`
}

// TypeDiagnostic returns the value mirrored onto the client record,
// e.g. "07 Coiffure". A nil assignment mirrors to the empty string.
func (a *Assignment) TypeDiagnostic() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.SectorID + " " + a.SectorName)
}

// Clone returns a copy that can be handed to another goroutine.
func (a *Assignment) Clone() *Assignment {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// SameSector reports whether a and b bind the same sector. Two nil
// assignments are equal (both unassigned).
func SameSector(a, b *Assignment) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.SectorID == b.SectorID
}

// ClientRecord is owned by the client-management collaborator; this module
// only writes TypeDiagnostic as a side effect of assignment changes.
type ClientRecord struct {
	ID             string    `json:"id" bson:"_id"`
	Name           string    `json:"name,omitempty" bson:"name,omitempty"`
	TypeDiagnostic string    `json:"type_diagnostic" bson:"type_diagnostic"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

// AssignmentEvent is the full-state push payload for an assignment change.
// Assignment is nil after an unassign.
type AssignmentEvent struct {
	ClientID   string      `json:"client_id"`
	Assignment *Assignment `json:"assignment"`
	At         time.Time   `json:"at"`
}
