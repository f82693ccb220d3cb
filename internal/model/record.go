package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MaxAttempts bounds reverification attempts per record, the first slot included.
const MaxAttempts = 3

// MaxRetries bounds retry slots per record.
const MaxRetries = 2

// ReverifyStatus is the reverification sub-state of a record.
type ReverifyStatus string

const (
	ReverifyNotRequired  ReverifyStatus = "NOT_REQUIRED"
	ReverifyPending      ReverifyStatus = "PENDING"
	ReverifyRetryPending ReverifyStatus = "RETRY_PENDING"
	ReverifyPassed       ReverifyStatus = "PASSED"
	ReverifyMissed       ReverifyStatus = "MISSED"
	ReverifyFailed       ReverifyStatus = "FAILED"
)

// IsPending reports whether the record still waits for a reverification attempt.
func (s ReverifyStatus) IsPending() bool {
	return s == ReverifyPending || s == ReverifyRetryPending
}

// IsTerminal reports whether no further transition is allowed.
func (s ReverifyStatus) IsTerminal() bool {
	return s == ReverifyPassed || s == ReverifyMissed || s == ReverifyFailed
}

// ReverifyState is the mutable part of a record owned by the scheduler and sweeper.
type ReverifyState struct {
	Required     bool
	Status       ReverifyStatus
	AttemptCount int
	RetryCount   int
	RequestedAt  *time.Time
	DeadlineAt   *time.Time
	CompletedAt  *time.Time
	Confidence   *int
}

// Record is the single attendance record of a participant in a session.
type Record struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	ParticipantID uuid.UUID

	Latitude       float64
	Longitude      float64
	DistanceMeters float64
	WithinRadius   bool
	DeviceToken    string
	BiometricUsed  bool
	ProximityRSSI  *float64
	ProximityScans int
	VelocityMps    *float64
	DeviceScore    int
	CapturedAt     time.Time

	Confidence int
	Flagged    bool

	Reverify ReverifyState

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReverifyGuard is the state a compare-and-swap expects to find.
type ReverifyGuard struct {
	Status     ReverifyStatus
	DeadlineAt *time.Time
}

// ReverifyUpdate is the state a compare-and-swap writes.
type ReverifyUpdate struct {
	Status       ReverifyStatus
	AttemptCount int
	RetryCount   int
	RequestedAt  *time.Time
	DeadlineAt   *time.Time
	CompletedAt  *time.Time
	Confidence   *int
	Flagged      bool
	// Anomalies are inserted together with the update, and only when the swap wins.
	Anomalies []Anomaly
}

// Location is a past position of a participant.
type Location struct {
	Latitude   float64
	Longitude  float64
	CapturedAt time.Time
}

// RecordStore defines persistence operations for attendance records.
type RecordStore interface {
	// CreateWithAnomalies inserts the record and its anomalies atomically.
	// A second record for the same (session, participant) yields ErrConflict.
	CreateWithAnomalies(ctx context.Context, record Record, anomalies []Anomaly) (Record, error)
	GetBySessionAndParticipant(ctx context.Context, sessionID, participantID uuid.UUID) (Record, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Record, error)
	// ListPending returns PENDING and RETRY_PENDING records. When dueBefore is set only
	// records whose deadline is at or before it are returned.
	ListPending(ctx context.Context, sessionID uuid.UUID, dueBefore *time.Time) ([]Record, error)
	// LatestReservedAt returns the latest requested_at among records that hold a slot.
	LatestReservedAt(ctx context.Context, sessionID uuid.UUID) (*time.Time, error)
	// CompareAndSwapReverify writes update when the record still matches guard. The state
	// change and update.Anomalies commit atomically.
	CompareAndSwapReverify(ctx context.Context, id uuid.UUID, guard ReverifyGuard, update ReverifyUpdate) (bool, error)
	RecentLocations(ctx context.Context, participantID uuid.UUID, limit int) ([]Location, error)
}
