package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	m := NewManager(TokenConfig{Secret: []byte("s3cret")})

	token, err := m.Issue("p1", "Ada")
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "p1", claims.PlayerID)
	assert.Equal(t, "Ada", claims.Username)
	assert.Equal(t, "p1", claims.Subject)
}

func TestValidateRejects(t *testing.T) {
	m := NewManager(TokenConfig{Secret: []byte("s3cret")})
	other := NewManager(TokenConfig{Secret: []byte("other")})

	foreign, err := other.Issue("p1", "Ada")
	require.NoError(t, err)

	_, err = m.Validate(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Validate("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = m.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Issue(" ", "nobody")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	m := NewManager(TokenConfig{Secret: []byte("s3cret"), TTL: time.Minute})
	issued := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	token, err := m.Issue("p1", "Ada")
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateFallsBackToSubject(t *testing.T) {
	m := NewManager(TokenConfig{Secret: []byte("s3cret")})
	now := time.Now()
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "falling-trivia",
		Subject:   "engine-42",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	token, err := raw.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "engine-42", claims.PlayerID)
	assert.Equal(t, "engine-42", claims.Username)
}

func TestFromRequestValues(t *testing.T) {
	assert.Equal(t, "abc", FromRequestValues("Bearer abc", "zzz"))
	assert.Equal(t, "zzz", FromRequestValues("", "zzz"))
	assert.Equal(t, "zzz", FromRequestValues("Basic abc", "zzz"))
}
