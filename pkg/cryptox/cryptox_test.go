package cryptox_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harborview/mediahub/pkg/cryptox"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := cryptox.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.Contains(t, hash, "$argon2id$")

	require.NoError(t, cryptox.VerifyPassword("correct horse battery staple", hash))
	require.ErrorIs(t, cryptox.VerifyPassword("wrong", hash), cryptox.ErrPasswordMismatch)
}

func TestHashIsSalted(t *testing.T) {
	a, err := cryptox.HashPassword("same password")
	require.NoError(t, err)
	b, err := cryptox.HashPassword("same password")
	require.NoError(t, err)
	require.NotEqual(t, a, b, "two hashes of the same password must differ")
}

func TestVerifyPasswordRejectsGarbageHash(t *testing.T) {
	require.Error(t, cryptox.VerifyPassword("whatever", "not-a-phc-string"))
}

func TestGeneratePassword(t *testing.T) {
	a, err := cryptox.GeneratePassword()
	require.NoError(t, err)
	require.Len(t, a, 12)

	b, err := cryptox.GeneratePassword()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := cryptox.GenerateToken(cryptox.TokenSize128)
		require.NoError(t, err)
		require.NotEmpty(t, token)
		require.False(t, seen[token], "tokens must be unique")
		seen[token] = true
	}
}

func TestFingerprintTokenIsStable(t *testing.T) {
	a := cryptox.FingerprintToken("some-token")
	require.Equal(t, a, cryptox.FingerprintToken("some-token"))
	require.NotEqual(t, a, cryptox.FingerprintToken("other-token"))
}
