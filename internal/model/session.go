package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle status of a verification session.
type SessionStatus string

const (
	// SessionStatusActive marks a session that still accepts verification.
	SessionStatusActive SessionStatus = "ACTIVE"
	// SessionStatusClosed is terminal.
	SessionStatusClosed SessionStatus = "CLOSED"
)

// Phase is the derived verification window of a session.
type Phase string

const (
	// PhaseInitial accepts first submissions.
	PhaseInitial Phase = "INITIAL"
	// PhaseReverify challenges the selected subset again.
	PhaseReverify Phase = "REVERIFY"
	// PhaseClosed is terminal.
	PhaseClosed Phase = "CLOSED"
)

// Rank orders phases so that transitions can be checked for monotonicity.
func (p Phase) Rank() int {
	switch p {
	case PhaseInitial:
		return 1
	case PhaseReverify:
		return 2
	case PhaseClosed:
		return 3
	default:
		return 0
	}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p.Rank() > 0
}

// Session is one verification window for one class meeting.
type Session struct {
	ID         uuid.UUID
	CourseID   uuid.UUID
	LecturerID uuid.UUID

	CenterLat    float64
	CenterLng    float64
	RadiusMeters float64

	Rotation time.Duration
	Grace    time.Duration

	Status SessionStatus
	Phase  Phase

	StartedAt      time.Time
	InitialEndsAt  time.Time
	ReverifyEndsAt time.Time
	ClosedAt       *time.Time

	ReverifySelectionRate  float64
	ReverifySelectionDone  bool
	ReverifySelectedCount  int
	ReverifySelectionRunAt *time.Time

	// Secret derives every proof token of the session. It never leaves the server.
	Secret []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PhaseEndsAt returns the instant at which the given phase ends for this session.
func (s Session) PhaseEndsAt(p Phase) time.Time {
	switch p {
	case PhaseInitial:
		return s.InitialEndsAt
	case PhaseReverify:
		return s.ReverifyEndsAt
	default:
		if s.ClosedAt != nil {
			return *s.ClosedAt
		}
		return s.ReverifyEndsAt
	}
}

// SlotLifetime is the time a reverification slot stays open: one rotation plus grace.
func (s Session) SlotLifetime() time.Duration {
	return s.Rotation + s.Grace
}

// ReverifyAssignment is one participant's slot chosen by the selection planner.
type ReverifyAssignment struct {
	RecordID      uuid.UUID
	ParticipantID uuid.UUID
	Sequence      int64
	RequestedAt   time.Time
	DeadlineAt    time.Time
	BatchIndex    int
	BatchCount    int
}

// SelectionFunc plans reverification for a locked session given its eligible pool.
// It must not perform I/O: it runs while the session row is locked.
type SelectionFunc func(session Session, eligible []Record) []ReverifyAssignment

// SelectionOutcome describes the result of a selection transaction.
type SelectionOutcome struct {
	// AlreadyDone is true when another caller completed the selection first.
	AlreadyDone bool
	Assignments []ReverifyAssignment
}

// SessionStore defines persistence operations for sessions.
type SessionStore interface {
	Create(ctx context.Context, session Session) (Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (Session, error)
	ListOpen(ctx context.Context) ([]Session, error)
	// CompareAndSetPhase moves the phase from -> to only when the stored phase still equals from.
	// Moving to PhaseClosed also closes the session status. Returns false when another writer got there first.
	CompareAndSetPhase(ctx context.Context, id uuid.UUID, from, to Phase, at time.Time) (bool, error)
	// Close closes an active session on explicit lecturer action.
	Close(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// ApplySelection runs fn at most once per session inside a single transaction.
	ApplySelection(ctx context.Context, id uuid.UUID, at time.Time, fn SelectionFunc) (SelectionOutcome, error)
}
