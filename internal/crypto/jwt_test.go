package crypto

import (
	"testing"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewJWTManager("shared-secret")
	require.NoError(t, err)

	token, err := m.CreateToken(wire.RoleDisplay, "till-1", time.Hour)
	require.NoError(t, err)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	require.Equal(t, wire.RoleDisplay, claims.Role)
	require.Equal(t, "till-1", claims.Terminal)
}

func TestTokenFromOtherSecretRejected(t *testing.T) {
	a, err := NewJWTManager("secret-a")
	require.NoError(t, err)
	b, err := NewJWTManager("secret-b")
	require.NoError(t, err)

	token, err := a.CreateToken(wire.RoleOperator, "till-1", 0)
	require.NoError(t, err)
	_, err = b.VerifyToken(token)
	require.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	m, err := NewJWTManager("shared-secret")
	require.NoError(t, err)
	issued := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return issued }

	token, err := m.CreateToken(wire.RoleOperator, "till-1", time.Minute)
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = m.VerifyToken(token)
	require.Error(t, err)
}

func TestCreateTokenValidation(t *testing.T) {
	m, err := NewJWTManager("shared-secret")
	require.NoError(t, err)

	_, err = m.CreateToken("admin", "till-1", 0)
	require.ErrorIs(t, err, ErrInvalidRole)

	_, err = m.CreateToken(wire.RoleDisplay, " ", 0)
	require.Error(t, err)

	_, err = NewJWTManager("")
	require.Error(t, err)
}
