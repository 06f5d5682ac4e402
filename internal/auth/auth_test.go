package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenVerifier(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, token, 64)

	hash, err := HashToken(token)
	require.NoError(t, err)

	v := NewTokenVerifier(hash)
	assert.True(t, v.Enabled())
	assert.NoError(t, v.Verify(token))
	assert.ErrorIs(t, v.Verify("wrong"), ErrInvalidToken)
	assert.ErrorIs(t, v.Verify(""), ErrInvalidToken)
}

func TestDisabledVerifier(t *testing.T) {
	v := NewTokenVerifier("")
	assert.False(t, v.Enabled())
	assert.NoError(t, v.Verify(""))
}

func TestHashTokenRejectsEmpty(t *testing.T) {
	_, err := HashToken("  ")
	assert.Error(t, err)
}
