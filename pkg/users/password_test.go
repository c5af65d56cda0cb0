package users

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$"), hash)
	assert.Len(t, strings.Split(hash, "$"), 6)

	// Salts are random, so hashing twice never repeats.
	again, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again)
}

func TestCheckPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)

	ok, err := CheckPassword(hash, "correct horse battery")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(hash, "wrong password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckPasswordMalformedHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"bcrypt", "$2a$10$N9qo8uLOickgx2ZMRZoMye"},
		{"wrong variant", "$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$a2V5"},
		{"missing sections", "$argon2id$v=19$m=65536,t=3,p=1"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=3,p=1$!!!$a2V5"},
		{"unsupported version", "$argon2id$v=18$m=65536,t=3,p=1$c2FsdA$a2V5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckPassword(tt.hash, "anything")
			require.Error(t, err)
		})
	}
}

func TestDecodeHash(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("pw for param test")
	require.NoError(t, err)

	memory, iterations, parallelism, salt, key, err := decodeHash(hash)
	require.NoError(t, err)
	assert.Equal(t, uint32(64*1024), memory)
	assert.Equal(t, uint32(3), iterations)
	assert.Equal(t, uint8(1), parallelism)
	assert.Len(t, salt, argonSaltLength)
	assert.Len(t, key, argonKeyLength)
}
