package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const ClientKey contextKey = "client"

// open paths skip auth and rate limiting
var openPaths = map[string]bool{"/health": true, "/healthz": true, "/metrics": true}

// ParseAPIKeys turns "name:key" or bare "key" entries into a key→client map.
// Bare keys are named client-1, client-2, ...
func ParseAPIKeys(entries []string) map[string]string {
	keys := make(map[string]string, len(entries))
	for i, e := range entries {
		name, key, ok := strings.Cut(e, ":")
		if !ok {
			name, key = fmt.Sprintf("client-%d", i+1), e
		}
		name, key = strings.TrimSpace(name), strings.TrimSpace(key)
		if key != "" {
			keys[key] = name
		}
	}
	return keys
}

// APIKeyAuth validates API key from Authorization or X-API-Key header.
// keys maps key to client name.
func APIKeyAuth(keys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if openPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if auth == "" {
					writeError(w, http.StatusUnauthorized, "missing Authorization header")
					return
				}
				// Support both "Bearer <key>" and "<key>" formats
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
			apiKey = strings.TrimSpace(apiKey)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "invalid Authorization header format")
				return
			}

			// constant-time comparison
			client := ""
			for key, name := range keys {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					client = name
					break
				}
			}
			if client == "" {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), ClientKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientFromContext returns the authenticated client name, if any.
func ClientFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(ClientKey).(string); ok {
		return c
	}
	return ""
}
