package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	service := NewService(nil, "unit-test-secret-key-0123456789ab")

	t.Run("should round-trip admin claims", func(t *testing.T) {
		token, err := service.CreateToken(RoleAdmin, "admin-1", "")
		require.NoError(t, err)

		claims, err := service.VerifyToken(token)
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, claims.Role)
		assert.Equal(t, "admin-1", claims.Subject)
		assert.Empty(t, claims.DoctorID)
	})

	t.Run("should round-trip doctor claims with doctor id", func(t *testing.T) {
		token, err := service.CreateToken(RoleDoctor, "doc-1", "doc-1")
		require.NoError(t, err)

		claims, err := service.VerifyToken(token)
		require.NoError(t, err)
		assert.Equal(t, RoleDoctor, claims.Role)
		assert.Equal(t, "doc-1", claims.DoctorID)
	})

	t.Run("should reject token signed with another secret", func(t *testing.T) {
		other := NewService(nil, "a-completely-different-secret-key")
		token, err := other.CreateToken(RoleAdmin, "admin-1", "")
		require.NoError(t, err)

		_, err = service.VerifyToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("should reject garbage tokens", func(t *testing.T) {
		_, err := service.VerifyToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("should reject expired tokens", func(t *testing.T) {
		issuer := NewService(nil, "unit-test-secret-key-0123456789ab")
		issuer.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }

		token, err := issuer.CreateToken(RoleAdmin, "admin-1", "")
		require.NoError(t, err)

		_, err = service.VerifyToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestTempPassword(t *testing.T) {
	t.Run("should generate distinct passwords", func(t *testing.T) {
		a, err := tempPassword()
		require.NoError(t, err)
		b, err := tempPassword()
		require.NoError(t, err)

		assert.Len(t, a, 12)
		assert.NotEqual(t, a, b)
	})
}
