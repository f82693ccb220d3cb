package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AnomalyType enumerates detected suspicious patterns.
type AnomalyType string

const (
	AnomalyVelocity        AnomalyType = "VELOCITY"
	AnomalyLocationJump    AnomalyType = "LOCATION_JUMP"
	AnomalyDeviceMismatch  AnomalyType = "DEVICE_MISMATCH"
	AnomalyTokenReuse      AnomalyType = "TOKEN_REUSE"
	AnomalyRapidSubmission AnomalyType = "RAPID_SUBMISSION"
)

// Anomaly is an immutable audit row.
type Anomaly struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	ParticipantID uuid.UUID
	Type          AnomalyType
	Severity      int
	Confidence    float64
	Details       map[string]any
	CreatedAt     time.Time
}

// AnomalyStore persists anomalies. Rows are never updated.
type AnomalyStore interface {
	Create(ctx context.Context, anomaly Anomaly) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Anomaly, error)
}
