package auth_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/fence/internal/auth"
	"golang.org/x/crypto/bcrypt"
)

func TestSecretHasher(t *testing.T) {
	hasher := auth.NewBcryptSecretHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.NoError(t, hasher.Verify(hash, "s3cret"))
	assert.ErrorIs(t, hasher.Verify(hash, "other"), bcrypt.ErrMismatchedHashAndPassword)

	t.Run("TooLongSecret", func(t *testing.T) {
		tooLong := make([]byte, 73)
		_, _ = rand.Read(tooLong)

		_, err := hasher.Hash(string(tooLong))
		assert.Error(t, err)
	})
}

func TestSecretHasherDefaultCost(t *testing.T) {
	hasher := auth.NewBcryptSecretHasher(0)
	assert.Equal(t, bcrypt.DefaultCost, hasher.Cost)

	// Burn must not panic for any input.
	hasher.Burn("anything")
}
