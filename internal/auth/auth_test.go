package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	require.NoError(t, Init(time.Hour))
	userID := uuid.New().String()

	token, err := CreateJWT(userID)
	require.NoError(t, err)

	sub, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID, sub)

	_, err = AuthenticateJWT(token + "x")
	assert.Error(t, err)
}

func TestJWTFromOtherKeyRejected(t *testing.T) {
	require.NoError(t, Init(0))
	token, err := CreateJWT(uuid.New().String())
	require.NoError(t, err)

	require.NoError(t, Init(0)) // rotates the key pair
	_, err = AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestParseTokenExpiry(t *testing.T) {
	for _, raw := range []string{"", "0", "never"} {
		d, err := ParseTokenExpiry(raw)
		require.NoError(t, err)
		assert.Zero(t, d)
	}
	d, err := ParseTokenExpiry("72h")
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, d)

	_, err = ParseTokenExpiry("soon")
	assert.Error(t, err)
}

func TestRoomPasswordHasher(t *testing.T) {
	h := NewRoomPasswordHasher()
	hash, err := h.Hash("hunter2")
	require.NoError(t, err)

	ok, err := h.Verify("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("hunter3", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.Verify("", "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("x", "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)
}
