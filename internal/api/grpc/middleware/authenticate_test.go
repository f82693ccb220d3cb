package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/rollcall-server/internal/mocks"
	"github.com/dtroode/rollcall-server/internal/testutil"
)

func TestAuthenticate_AuthFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		mdAuthHeader   string
		parsedCallerID uuid.UUID
		parseErr       error
		wantErr        bool
		expectSetCtx   bool
	}{
		{
			name:    "missing authorization header",
			wantErr: true,
		},
		{
			name:         "invalid token",
			mdAuthHeader: "Bearer invalid",
			parseErr:     errors.New("token is malformed"),
			wantErr:      true,
		},
		{
			name:           "nil caller id from token",
			mdAuthHeader:   "Bearer token",
			parsedCallerID: uuid.Nil,
			wantErr:        true,
		},
		{
			name:           "valid token",
			mdAuthHeader:   "Bearer token",
			parsedCallerID: uuid.New(),
			expectSetCtx:   true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lg := testutil.MakeNoopLogger()
			cm := mocks.NewContextManager(t)
			if tt.expectSetCtx {
				cm.On("SetCallerIDToContext", mock.Anything, tt.parsedCallerID).Return(context.Background())
			}

			tm := mocks.NewTokenManager(t)
			if tt.mdAuthHeader != "" {
				tm.On("ParseAccessToken", "token").Maybe().Return(tt.parsedCallerID, tt.parseErr)
				tm.On("ParseAccessToken", "invalid").Maybe().Return(tt.parsedCallerID, tt.parseErr)
			}
			m := NewAuthenticate(tm, cm, lg)

			ctx := context.Background()
			if tt.mdAuthHeader != "" {
				ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", tt.mdAuthHeader))
			}

			newCtx, err := m.AuthFunc(ctx)

			if tt.wantErr {
				assert.Error(t, err)
				st, ok := status.FromError(err)
				assert.True(t, ok)
				assert.Equal(t, codes.Unauthenticated, st.Code())
				assert.Nil(t, newCtx)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, newCtx)
			}
		})
	}
}
