package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return tok
}

func TestInspectAccessTokenPrefersNumericUserID(t *testing.T) {
	tok := signed(t, jwt.MapClaims{"sub": "alice", "user_id": 12, "exp": time.Now().Add(time.Hour).Unix()})

	id, err := InspectAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "12", id.UserID)
	assert.Equal(t, "alice", id.Username)
}

func TestInspectAccessTokenFallsBackToSubject(t *testing.T) {
	id, err := InspectAccessToken(signed(t, jwt.MapClaims{"sub": "bob"}))
	require.NoError(t, err)
	assert.Equal(t, "bob", id.UserID)
	assert.Equal(t, "bob", id.Username)

	id, err = InspectAccessToken(signed(t, jwt.MapClaims{"sub": "carol", "uid": "u-9"}))
	require.NoError(t, err)
	assert.Equal(t, "u-9", id.UserID)
}

func TestInspectAccessTokenRejectsOpaque(t *testing.T) {
	_, err := InspectAccessToken("abc")
	assert.ErrorIs(t, err, ErrMalformedToken)

	_, err = InspectAccessToken(signed(t, jwt.MapClaims{"scope": "x"}))
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestSealOpenValue(t *testing.T) {
	sealed := SealValue("k", "session-1")

	value, ok := OpenValue("k", sealed)
	assert.True(t, ok)
	assert.Equal(t, "session-1", value)

	_, ok = OpenValue("other", sealed)
	assert.False(t, ok)

	_, ok = OpenValue("k", "session-1.forged")
	assert.False(t, ok)

	_, ok = OpenValue("k", "no-signature")
	assert.False(t, ok)
}
