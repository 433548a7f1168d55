// Package middleware holds the HTTP middleware chain.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// APIKeyHeader is the header carrying the shared-secret credential.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests whose credential does not match. The
// credential is read from the X-API-Key header, or from the api_key query
// parameter when the header is absent. The health endpoint is exempted by
// the caller's routing, not here.
func APIKeyAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(APIKeyHeader)
		if presented == "" {
			// WebSocket clients cannot set headers from browsers; accept
			// the credential as a query parameter on the upgrade request.
			presented = r.URL.Query().Get("api_key")
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    "unauthorized",
				"message": "missing or invalid API key",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
