package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Auth enforces bearer authentication on the OpenAI-compatible surface.
//
// When disabled every request passes. When enabled, a bearer token equal to
// the gateway token authenticates normally; any other non-empty token is
// treated as the caller's own upstream credential and forwarded in the
// context so the engine can use it instead of the managed pool. A missing
// token is rejected.
func Auth(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			presented := bearerToken(r)
			if presented == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"message": "Missing bearer token.",
						"type":    "invalid_request_error",
						"code":    "invalid_api_key",
					},
				})
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			// A foreign token is the caller's own provider key.
			ctx := context.WithValue(r.Context(), UserKeyKey, presented)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserKey extracts a caller-supplied upstream credential from the
// context. Empty means the managed pool should be used.
func GetUserKey(ctx context.Context) string {
	if key, ok := ctx.Value(UserKeyKey).(string); ok {
		return key
	}
	return ""
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
