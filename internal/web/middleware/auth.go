package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the shared API key.
const APIKeyHeader = "X-API-Key"

// Authentication rejects requests whose X-API-Key header does not match key.
func Authentication(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid or missing API key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
