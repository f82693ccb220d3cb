package model

import (
	"context"

	"github.com/google/uuid"
)

// ContextManager stores the authenticated caller in a request context.
type ContextManager interface {
	SetCallerIDToContext(ctx context.Context, callerID uuid.UUID) context.Context
	GetCallerIDFromContext(ctx context.Context) (uuid.UUID, bool)
}
