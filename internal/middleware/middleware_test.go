package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	email string
	err   error
}

func (s stubVerifier) Verify(context.Context, string) (string, error) { return s.email, s.err }

func TestAuthMiddleware(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = EmailFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name     string
		header   string
		verifier TokenVerifier
		want     int
		email    string
	}{
		{"missing header", "", stubVerifier{email: "a@example.com"}, http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", stubVerifier{email: "a@example.com"}, http.StatusUnauthorized, ""},
		{"rejected token", "Bearer abc", stubVerifier{err: errors.New("bad")}, http.StatusUnauthorized, ""},
		{"valid", "Bearer abc", stubVerifier{email: "a@example.com"}, http.StatusNoContent, "a@example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/credits", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(tc.verifier, zerolog.Nop())(next).ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
			assert.Equal(t, tc.email, seen)
		})
	}
}

func TestLoggerMiddlewareKeepsStatus(t *testing.T) {
	h := LoggerMiddleware(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
