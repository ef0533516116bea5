// Package jwttest builds access tokens for tests.
package jwttest

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const signingKey = "jwttest-signing-key"

// Sign signs claims with a throwaway HMAC key. The client never verifies it.
func Sign(t testing.TB, claims jwtlib.MapClaims) string {
	t.Helper()

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	require.NoError(t, err)
	return signed
}

// AccessToken returns a token expiring at exp. An empty role omits the claim.
func AccessToken(t testing.TB, exp time.Time, role string) string {
	t.Helper()

	claims := jwtlib.MapClaims{
		"sub": "1",
		"iat": exp.Add(-time.Hour).Unix(),
		"exp": exp.Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	return Sign(t, claims)
}
