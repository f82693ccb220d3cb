package middleware

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/rollcall-server/internal/apierrors"
	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
)

// Authenticate validates bearer tokens and injects caller ID into context.
type Authenticate struct {
	tokenManager   model.TokenManager
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(tokenManager model.TokenManager, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{tokenManager: tokenManager, contextManager: contextManager, logger: logger}
}

// AuthFunc parses Authorization header, validates token and returns a context with caller ID.
func (m *Authenticate) AuthFunc(ctx context.Context) (context.Context, error) {
	var tokenString string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if authHeaders := md.Get("authorization"); len(authHeaders) > 0 {
			tokenString = strings.TrimPrefix(authHeaders[0], "Bearer ")
		}
	}

	callerID, authErr := m.authenticateCaller(tokenString)
	if authErr != nil {
		m.logger.Debug("Authenticate middleware: rejected request", "error", authErr.Error())
		return nil, status.Error(codes.Unauthenticated, authErr.Error())
	}

	return m.contextManager.SetCallerIDToContext(ctx, callerID), nil
}

func (m *Authenticate) authenticateCaller(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, apierrors.NewErrMissingAuthorizationToken()
	}

	callerID, err := m.tokenManager.ParseAccessToken(tokenString)
	if err != nil || callerID == uuid.Nil {
		return uuid.Nil, apierrors.NewErrInvalidAuthorizationToken()
	}

	return callerID, nil
}
