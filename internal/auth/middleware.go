package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/mnhsh/digital-capsule/internal/response"
)

var ErrNoAuthHeader = errors.New("no authorization header included")

func GetBearerToken(headers http.Header) (string, error) {
	authHeader := headers.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoAuthHeader
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", errors.New("malformed authorization header")
	}
	return strings.TrimSpace(token), nil
}

// WithAdminToken only lets requests carrying the configured bearer token
// through. An empty token turns the guarded route off entirely.
func WithAdminToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			response.RespondWithError(w, http.StatusForbidden, "admin actions are disabled", nil)
			return
		}

		got, err := GetBearerToken(r.Header)
		if err != nil {
			response.RespondWithError(w, http.StatusUnauthorized, "Unauthorized", err)
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			response.RespondWithError(w, http.StatusUnauthorized, "Invalid Token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware allows read-only cross origin use of the JSON endpoints.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
