package context

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"

	"github.com/dtroode/rollcall-server/internal/model"
)

// callerIDKey is the metadata key used to store and retrieve caller ID in gRPC context.
const (
	callerIDKey string = "caller_id"
)

var _ model.ContextManager = (*Manager)(nil)

// Manager represents a gRPC context manager for caller ID operations.
// It keeps the authenticated caller in incoming metadata so handlers can read it back.
type Manager struct{}

// NewManager creates a new gRPC context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetCallerIDToContext sets the caller ID in the gRPC context metadata.
// Existing incoming metadata is copied, never mutated in place.
func (m *Manager) SetCallerIDToContext(ctx context.Context, callerID uuid.UUID) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		md = metadata.New(map[string]string{callerIDKey: callerID.String()})
	} else {
		md = md.Copy()
		md.Set(callerIDKey, callerID.String())
	}

	return metadata.NewIncomingContext(ctx, md)
}

// GetCallerIDFromContext retrieves the caller ID from gRPC context metadata.
//
// Returns the caller UUID and a boolean indicating if a valid caller ID was found.
func (m *Manager) GetCallerIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return uuid.Nil, false
	}

	callerIDs := md.Get(callerIDKey)
	if len(callerIDs) == 0 {
		return uuid.Nil, false
	}

	callerID, err := uuid.Parse(callerIDs[0])
	if err != nil || callerID == uuid.Nil {
		return uuid.Nil, false
	}

	return callerID, true
}
