// Package auth provides the shared-key request gate for the engine's API.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

const headerName = "X-API-Key"

// RequireAPIKey rejects requests whose X-API-Key header does not match key.
// When key is empty the middleware is a no-op (open mode for local
// development). Comparison is constant-time.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			provided := r.Header.Get(headerName)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
