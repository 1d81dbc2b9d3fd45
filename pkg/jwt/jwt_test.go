package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m, err := NewManager("s3cret", "wes-board", time.Hour)
	require.NoError(t, err)

	token, err := m.GenerateToken("user-1")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID())
}

func TestManager_Rejects(t *testing.T) {
	m, err := NewManager("s3cret", "wes-board", time.Hour)
	require.NoError(t, err)

	other, err := NewManager("another", "wes-board", time.Hour)
	require.NoError(t, err)
	forged, err := other.GenerateToken("user-1")
	require.NoError(t, err)

	expiring, err := NewManager("s3cret", "wes-board", time.Minute)
	require.NoError(t, err)
	expiring.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiring.GenerateToken("user-1")
	require.NoError(t, err)

	foreignIssuer, err := NewManager("s3cret", "someone-else", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := foreignIssuer.GenerateToken("user-1")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ID: "user-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong secret", forged, ErrInvalidToken},
		{"expired", expired, ErrExpiredToken},
		{"wrong issuer", wrongIssuer, ErrInvalidToken},
		{"alg none", unsigned, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateToken(tt.token)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClaims_SubjectFallback(t *testing.T) {
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-2"}}
	require.Equal(t, "user-2", c.UserID())
}

func TestNewManager_EmptySecret(t *testing.T) {
	_, err := NewManager("", "", time.Hour)
	require.ErrorIs(t, err, ErrEmptySecret)
}
