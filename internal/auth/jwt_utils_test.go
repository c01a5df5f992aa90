package auth

import (
	"testing"
	"time"

	"medshop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIssuer(now time.Time) *TokenIssuer {
	i := NewTokenIssuer("test-secret", time.Hour, 15*time.Minute)
	i.now = func() time.Time { return now }
	return i
}

func TestSessionTokenRoundTrip(t *testing.T) {
	now := time.Now()
	i := testIssuer(now)
	user := models.User{ID: 7, Username: "clerk", Role: models.RoleStaff}

	token, expires, err := i.GenerateToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), expires, time.Second)

	claims, err := i.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "clerk", claims.Username)
	assert.Equal(t, models.RoleStaff, claims.Role)
}

func TestSessionTokenRejectsExpiredAndForged(t *testing.T) {
	now := time.Now()
	i := testIssuer(now)
	token, _, err := i.GenerateToken(models.User{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)

	i.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = i.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenIssuer("another-secret", time.Hour, time.Minute)
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = i.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenPurposesDoNotMix(t *testing.T) {
	i := testIssuer(time.Now())
	user := models.User{ID: 3, PasswordHash: "hash-1"}

	reset, err := i.GenerateResetToken(user)
	require.NoError(t, err)
	_, err = i.ValidateToken(reset)
	assert.ErrorIs(t, err, ErrWrongPurpose)

	session, _, err := i.GenerateToken(user)
	require.NoError(t, err)
	_, _, err = i.ParseResetToken(session)
	assert.ErrorIs(t, err, ErrWrongPurpose)
}

func TestResetTokenPinsPasswordHash(t *testing.T) {
	now := time.Now()
	i := testIssuer(now)
	user := models.User{ID: 3, PasswordHash: "hash-1"}

	token, err := i.GenerateResetToken(user)
	require.NoError(t, err)

	id, claims, err := i.ParseResetToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(3), id)
	assert.True(t, claims.MatchesPassword(user))

	user.PasswordHash = "hash-2"
	assert.False(t, claims.MatchesPassword(user))

	i.now = func() time.Time { return now.Add(16 * time.Minute) }
	_, _, err = i.ParseResetToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
