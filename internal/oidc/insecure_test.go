package oidc

import (
	"context"
	"testing"

	"github.com/communityconnect/connect/backend/go-services/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestInsecureVerifierReadsClaims(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "kc-123",
		"email": "resident@community.com",
	}).SignedString([]byte("any-key"))
	require.NoError(t, err)

	tok, err := NewInsecureVerifier().Verify(context.Background(), raw)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "kc-123", claims["sub"])
	require.Equal(t, "resident@community.com", claims["email"])
}

func TestInsecureVerifierRejectsGarbage(t *testing.T) {
	_, err := NewInsecureVerifier().Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	require.Nil(t, FromConfig(context.Background(), config.OIDCConfig{}))
	ver := FromConfig(context.Background(), config.OIDCConfig{AllowInsecure: true})
	_, ok := ver.(*InsecureVerifier)
	require.True(t, ok)
}
