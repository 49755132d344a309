package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("consoleauth-test-signing-key")

// TokenOption tweaks the claims of a minted token.
type TokenOption func(jwt.MapClaims)

// WithRoles sets the roles claim.
func WithRoles(roles ...string) TokenOption {
	return func(c jwt.MapClaims) { c["roles"] = roles }
}

// WithTokenType sets token_type (access or refresh).
func WithTokenType(tokenType string) TokenOption {
	return func(c jwt.MapClaims) { c["token_type"] = tokenType }
}

// WithSessionID pins the session_id claim, which is random otherwise.
func WithSessionID(sessionID string) TokenOption {
	return func(c jwt.MapClaims) { c["session_id"] = sessionID }
}

// WithoutExpiry drops the exp claim.
func WithoutExpiry() TokenOption {
	return func(c jwt.MapClaims) { delete(c, "exp") }
}

// MintToken signs an HS256 token for user expiring at exp. The client never
// verifies signatures, so the key only has to be stable.
func MintToken(t *testing.T, userID string, exp time.Time, opts ...TokenOption) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id":    userID,
		"username":   userID,
		"email":      userID + "@example.com",
		"session_id": uuid.NewString(),
		"token_type": "access",
		"exp":        exp.Unix(),
		"iat":        exp.Add(-time.Hour).Unix(),
		"iss":        "consoleauth-test",
		"jti":        uuid.NewString(),
	}
	for _, opt := range opts {
		opt(claims)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	require.NoError(t, err)
	return signed
}
