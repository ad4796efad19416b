package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasirku/kasir/internal/platform/httpx"
	"github.com/kasirku/kasir/internal/shared"
)

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewTokenManager("s3cret", time.Hour)
	require.NoError(t, err)

	raw, exp, err := m.Issue(shared.Identity{UserID: 7, Username: "siti", Role: shared.RoleCashier})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := m.Parse(raw)
	require.NoError(t, err)
	id := claims.Identity()
	assert.Equal(t, int64(7), id.UserID)
	assert.Equal(t, shared.RoleCashier, id.Role)
	assert.NotEmpty(t, id.TokenID)
	assert.Equal(t, exp.Unix(), id.ExpiresAt.Unix())
}

func TestTokenRejections(t *testing.T) {
	m, err := NewTokenManager("s3cret", time.Hour)
	require.NoError(t, err)
	raw, _, err := m.Issue(shared.Identity{UserID: 7, Role: shared.RoleAdmin})
	require.NoError(t, err)

	other, _ := NewTokenManager("different", time.Hour)
	_, err = other.Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, httpx.ErrUnauthorized)

	later := *m
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 7, Role: shared.RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Parse(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Parse("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenManager("", time.Hour)
	require.Error(t, err)
}
