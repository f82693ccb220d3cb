package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Cache is a shared key/value store with per-key expiry. Callers must treat
// every error as a cache miss: verification never depends on it.
type Cache interface {
	// Incr increments key and sets ttl when the key is created. Returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	GetFloat(ctx context.Context, key string) (float64, bool, error)
	SetFloat(ctx context.Context, key string, value float64, ttl time.Duration) error
	// ClaimOnce stores owner under key unless the key exists and returns the current holder.
	ClaimOnce(ctx context.Context, key, owner string, ttl time.Duration) (string, error)
}

// NotificationKind enumerates messages emitted by the engine.
type NotificationKind string

const (
	NotificationReverifyScheduled NotificationKind = "reverify_scheduled"
	NotificationReverifyRetry     NotificationKind = "reverify_retry"
	NotificationReverifyOutcome   NotificationKind = "reverify_outcome"
)

// Notification is a best-effort message to a participant.
type Notification struct {
	ParticipantID uuid.UUID
	Kind          NotificationKind
	Message       string
	Metadata      map[string]any
}

// Notifier delivers notifications. Failures are logged by callers, never retried.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}
