package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/pkg/models"
)

func TestAuthService(t *testing.T) {
	cfg := &config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour}
	auth := NewAuthService(cfg, testLogger())
	userID := uuid.New()

	t.Run("round trip", func(t *testing.T) {
		token, err := auth.GenerateToken(userID, "admin")
		require.NoError(t, err)

		claims, err := auth.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.Equal(t, "admin", claims.Role)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		token, err := auth.GenerateToken(userID, "user")
		require.NoError(t, err)

		other := NewAuthService(&config.AuthConfig{JWTSecret: "different", TokenTTL: time.Hour}, testLogger())
		_, err = other.ValidateToken(token)
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		expired := NewAuthService(&config.AuthConfig{JWTSecret: "test-secret", TokenTTL: -time.Hour}, testLogger())
		token, err := expired.GenerateToken(userID, "user")
		require.NoError(t, err)

		_, err = auth.ValidateToken(token)
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := auth.ValidateToken("not.a.token")
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})
}
