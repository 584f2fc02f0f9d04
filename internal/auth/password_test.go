package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	require.NotEqual(t, "secret1", hash)

	require.True(t, VerifyPassword(hash, "secret1"))
	require.False(t, VerifyPassword(hash, "secret2"))
}

func TestHashPasswordSaltsEachCall(t *testing.T) {
	t.Parallel()

	first, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	second, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestVerifyPasswordMalformedDigest(t *testing.T) {
	t.Parallel()

	require.False(t, VerifyPassword("not-a-bcrypt-digest", "secret1"))
	require.False(t, VerifyPassword("", "secret1"))
}
