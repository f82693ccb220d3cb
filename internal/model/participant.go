package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Participant is a student as seen by the verification engine.
type Participant struct {
	ID               uuid.UUID
	Email            string
	ContactVerified  bool
	BiometricDevices int
	CreatedAt        time.Time
}

// ParticipantStore reads participants and enrollments.
type ParticipantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (Participant, error)
	IsEnrolled(ctx context.Context, courseID, participantID uuid.UUID) (bool, error)
}

// DeviceLink binds a device token to a participant.
type DeviceLink struct {
	ParticipantID uuid.UUID
	DeviceToken   string
	TrustedAt     *time.Time
	RevokedAt     *time.Time
	LastUsedAt    time.Time
	CreatedAt     time.Time
}

// Trusted reports whether the link is administratively trusted and not revoked.
func (l DeviceLink) Trusted() bool {
	return l.TrustedAt != nil && l.RevokedAt == nil
}

// DeviceStore persists device links.
type DeviceStore interface {
	// Touch creates the link or bumps its last-used time. It returns the link as it was
	// before this call (zero CreatedAt when new) and ErrDeviceConflict when the device is
	// trusted for another participant.
	Touch(ctx context.Context, participantID uuid.UUID, deviceToken string, at time.Time) (DeviceLink, error)
	ListByParticipant(ctx context.Context, participantID uuid.UUID) ([]DeviceLink, error)
}
