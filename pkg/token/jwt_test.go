package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 1)

	tokenString, err := manager.GenerateToken("tenant-123")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := manager.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "tenant-123", claims.TenantID)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	tokenString, err := NewJWTManager("secret-a", 1).GenerateToken("tenant-123")
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", 1).VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenGarbage(t *testing.T) {
	_, err := NewJWTManager("test-secret", 1).VerifyToken("not-a-jwt")
	assert.Error(t, err)
}
