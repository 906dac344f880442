package util

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signHS256(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func validClaims(email string) Claims {
	return Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "5f0c3c43-7a4f-4a55-9a44-6f2d5c1f0c11",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestValidateJWTAcceptsSupabaseToken(t *testing.T) {
	tok := signHS256(t, validClaims("Alice@Example.com"), testSecret)

	claims, err := ValidateJWT(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "authenticated", claims.Role)
}

func TestValidateJWTRejects(t *testing.T) {
	expired := validClaims("a@example.com")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	cases := map[string]struct {
		token  string
		secret string
	}{
		"wrong secret":   {signHS256(t, validClaims("a@example.com"), "other-secret"), testSecret},
		"expired":        {signHS256(t, expired, testSecret), testSecret},
		"missing email":  {signHS256(t, validClaims(""), testSecret), testSecret},
		"garbage":        {"not-a-jwt", testSecret},
		"no key":         {signHS256(t, validClaims("a@example.com"), testSecret), ""},
		"unsigned token": {unsignedToken(t), testSecret},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateJWT(tc.token, tc.secret)
			assert.Error(t, err)
		})
	}
}

func unsignedToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("a@example.com")).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return tok
}

func TestIsPEM(t *testing.T) {
	assert.False(t, IsPEM(testSecret))
	assert.False(t, IsPEM("-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----"))
}
