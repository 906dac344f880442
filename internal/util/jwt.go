package util

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingEmail = errors.New("token has no email claim")

// Claims are the Supabase access-token claims the API relies on.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var supportedAlgs = []string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// ValidateJWT verifies a token signed either with the shared HMAC secret or with
// the PEM public key given as keyMaterial, and returns its claims.
func ValidateJWT(tokenString, keyMaterial string) (*Claims, error) {
	if keyMaterial == "" {
		return nil, errors.New("no key material configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return verificationKey(t, keyMaterial)
	}, jwt.WithValidMethods(supportedAlgs))
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Email == "" {
		return nil, ErrMissingEmail
	}
	claims.Email = strings.ToLower(claims.Email)
	return claims, nil
}

func verificationKey(t *jwt.Token, keyMaterial string) (interface{}, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		// A public key must never double as an HMAC secret.
		if IsPEM(keyMaterial) {
			return nil, errors.New("hmac token rejected: public key configured")
		}
		return []byte(keyMaterial), nil
	case *jwt.SigningMethodRSA:
		return jwt.ParseRSAPublicKeyFromPEM([]byte(keyMaterial))
	case *jwt.SigningMethodECDSA:
		return jwt.ParseECPublicKeyFromPEM([]byte(keyMaterial))
	}
	return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
}

// IsPEM reports whether keyMaterial looks like a PEM-encoded public key.
func IsPEM(keyMaterial string) bool {
	block, _ := pem.Decode([]byte(keyMaterial))
	if block == nil {
		return false
	}
	_, err := x509.ParsePKIXPublicKey(block.Bytes)
	return err == nil
}
