package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "pharmledger/internal/core/context"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, expiresAt, err := svc.GenerateAccessToken("u-17", "Dana", []string{appctx.RoleManager})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(12*time.Hour), expiresAt, time.Minute)

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-17", user.UserID)
	assert.Equal(t, "Dana", user.Username)
	assert.True(t, user.HasRole(appctx.RoleManager))
}

func TestValidateTokenRejects(t *testing.T) {
	issuer := NewJWTService(DefaultJWTConfig("test-secret"))
	token, _, err := issuer.GenerateAccessToken("u-1", "", []string{appctx.RolePharmacist})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewJWTService(DefaultJWTConfig("other")).ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		cfg := DefaultJWTConfig("test-secret")
		cfg.Issuer = "someone-else"
		_, err := NewJWTService(cfg).ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewJWTService(DefaultJWTConfig("test-secret"))
		late.now = func() time.Time { return time.Now().Add(13 * time.Hour) }
		_, err := late.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.ValidateToken("not-a-token")
		assert.Error(t, err)
	})
}

func TestGenerateAccessTokenValidatesInput(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	_, _, err := svc.GenerateAccessToken("", "x", nil)
	assert.Error(t, err)

	_, _, err = svc.GenerateAccessToken("u-1", "x", []string{"janitor"})
	assert.ErrorContains(t, err, "unknown role")
}
