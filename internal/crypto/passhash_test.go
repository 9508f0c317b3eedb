package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashVerifyRoundtrip(t *testing.T) {
	t.Parallel()
	salt, err := RandBytes(SaltLen)
	require.NoError(t, err)

	hash := HashPassword([]byte("s3cret"), salt)
	require.True(t, VerifyPassword([]byte("s3cret"), salt, hash))
	require.False(t, VerifyPassword([]byte("wrong"), salt, hash))
}

func TestHashDependsOnSalt(t *testing.T) {
	t.Parallel()
	s1, err := RandBytes(SaltLen)
	require.NoError(t, err)
	s2, err := RandBytes(SaltLen)
	require.NoError(t, err)

	require.NotEqual(t, HashPassword([]byte("pw"), s1), HashPassword([]byte("pw"), s2))
}
