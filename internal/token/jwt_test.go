package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestJWT_AccessToken_Roundtrip(t *testing.T) {
	j := NewJWT("secret", time.Hour)
	u := uuid.New()

	access, err := j.GenerateAccessToken(u)
	require.NoError(t, err)
	got, err := j.ParseAccessToken(access)
	require.NoError(t, err)
	require.Equal(t, u, got)
}

func TestJWT_Invalid(t *testing.T) {
	u := uuid.New()
	sign := func(c Claims, key string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong key", token: sign(Claims{RegisteredClaims: valid, CallerID: u, TokenType: typeAccess}, "other")},
		{name: "wrong type", token: sign(Claims{RegisteredClaims: valid, CallerID: u, TokenType: "refresh"}, "secret")},
		{name: "wrong issuer", token: sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone", ExpiresAt: valid.ExpiresAt},
			CallerID:         u, TokenType: typeAccess,
		}, "secret")},
		{name: "expired", token: sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
			CallerID:         u, TokenType: typeAccess,
		}, "secret")},
	}

	j := NewJWT("secret", time.Hour)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := j.ParseAccessToken(tt.token)
			require.Error(t, err)
		})
	}
}

func TestNewJWT_DefaultTTL(t *testing.T) {
	j := NewJWT("secret", 0).(*JWT)
	require.Equal(t, DefaultTTL, j.ttl)
}
