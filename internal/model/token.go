package model

import "github.com/google/uuid"

// TokenManager generates and validates caller access tokens.
type TokenManager interface {
	GenerateAccessToken(callerID uuid.UUID) (string, error)
	ParseAccessToken(token string) (uuid.UUID, error)
}
