package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/EisukeHirata/profile-nanobanana/internal/config"
	"github.com/EisukeHirata/profile-nanobanana/internal/util"

	"github.com/nedpals/supabase-go"
	"github.com/rs/zerolog"
)

// Injected key type to avoid context collisions
type contextKey string

// UserContextKey holds the authenticated user's email.
const UserContextKey = contextKey("user_email")

// TokenVerifier resolves a bearer token to the caller's email.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type jwtVerifier struct {
	keyMaterial string
}

func (v *jwtVerifier) Verify(_ context.Context, token string) (string, error) {
	claims, err := util.ValidateJWT(token, v.keyMaterial)
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}

// supabaseVerifier asks the Supabase auth server about the token. Used when no
// JWT secret is available locally.
type supabaseVerifier struct {
	client *supabase.Client
}

func (v *supabaseVerifier) Verify(ctx context.Context, token string) (string, error) {
	user, err := v.client.Auth.User(ctx, token)
	if err != nil {
		return "", fmt.Errorf("supabase auth: %w", err)
	}
	if user == nil || user.Email == "" {
		return "", util.ErrMissingEmail
	}
	return strings.ToLower(user.Email), nil
}

// NewTokenVerifier prefers local JWT verification and falls back to the Supabase auth API.
func NewTokenVerifier(cfg *config.Config) (TokenVerifier, error) {
	if cfg.JWTSecret != "" {
		return &jwtVerifier{keyMaterial: cfg.JWTSecret}, nil
	}
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		return &supabaseVerifier{client: supabase.CreateClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)}, nil
	}
	return nil, errors.New("auth: set SUPABASE_JWT_SECRET or SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
}

// NewJWTVerifier verifies tokens locally against a secret or PEM public key.
func NewJWTVerifier(keyMaterial string) TokenVerifier {
	return &jwtVerifier{keyMaterial: keyMaterial}
}

func AuthMiddleware(verifier TokenVerifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug().Msg("Authorization header missing")
				unauthorized(w, "Authorization header missing")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Debug().Msg("Invalid authorization header")
				unauthorized(w, "Invalid authorization header")
				return
			}
			email, err := verifier.Verify(r.Context(), parts[1])
			if err != nil {
				logger.Warn().Err(err).Msg("Invalid token")
				unauthorized(w, "Unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), UserContextKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EmailFromContext returns the email set by AuthMiddleware.
func EmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(UserContextKey).(string)
	return email, ok && email != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
