package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m, err := NewManager("s3cret", "wes-messenger", time.Hour)
	require.NoError(t, err)

	token, exp, err := m.GenerateAccessToken("user-1", "alice")
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	a, err := NewManager("secret-a", "wes-messenger", time.Hour)
	require.NoError(t, err)
	b, err := NewManager("secret-b", "wes-messenger", time.Hour)
	require.NoError(t, err)

	token, _, err := a.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	_, err = b.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	m, err := NewManager("s3cret", "wes-messenger", time.Minute)
	require.NoError(t, err)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := m.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager("", "x", time.Hour)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestValidateGarbage(t *testing.T) {
	m, err := NewManager("s3cret", "", time.Hour)
	require.NoError(t, err)

	_, err = m.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
