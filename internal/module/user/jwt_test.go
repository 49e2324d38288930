package user

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postnow/server/internal/shared/config"
)

func TestTokenRoundTrip(t *testing.T) {
	manager := NewTokenManager(&config.AuthConfig{
		JWTSecret:         "test-secret",
		AccessTokenExpiry: time.Hour,
	})

	u := &User{ID: uuid.New(), Email: "maya@example.com", IsAdmin: true}

	token, expiresAt, err := manager.Generate(u)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, u.Email, claims.Email)
	assert.True(t, claims.IsAdmin)
}

func TestValidateTokenRejections(t *testing.T) {
	manager := NewTokenManager(&config.AuthConfig{
		JWTSecret:         "test-secret",
		AccessTokenExpiry: time.Hour,
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := manager.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager(&config.AuthConfig{
			JWTSecret:         "different-secret",
			AccessTokenExpiry: time.Hour,
		})
		token, _, err := other.Generate(&User{ID: uuid.New(), Email: "x@example.com"})
		require.NoError(t, err)

		_, err = manager.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
