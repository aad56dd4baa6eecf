package password

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse battery")
	require.NoError(t, err)

	ok, err := h.Verify("correct horse battery", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("correct horse battery!", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	a, err := h.Hash("s3cretpass")
	require.NoError(t, err)
	b, err := h.Hash("s3cretpass")
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a, b))
}

func TestVerifyCorruptedHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	for _, stored := range [][]byte{
		nil,
		[]byte("plaintext-password"),
		[]byte("$9z$10$abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyzabc"),
	} {
		ok, err := h.Verify("whatever", stored)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrCorrupted, "stored=%q", stored)
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(bcrypt.MaxCost+1).cost)
	assert.Equal(t, 5, NewHasher(5).cost)
}
