package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fieldsync/agent/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyAuth creates middleware that guards the local API with a single key.
// The key is compared in constant time, or checked against a bcrypt hash when
// only the hash is configured. With neither set every request passes.
func APIKeyAuth(cfg config.Security) func(http.Handler) http.Handler {
	headerName := cfg.APIKeyHeader
	if headerName == "" {
		headerName = "X-API-Key"
	}
	check := keyChecker(cfg)

	return func(next http.Handler) http.Handler {
		if check == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for health endpoints
			path := r.URL.Path
			if path == "/health" || path == "/api/health" {
				next.ServeHTTP(w, r)
				return
			}

			if !strings.HasPrefix(path, "/api") && path != "/ws" {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get(headerName)
			if providedKey == "" {
				// browsers cannot set headers on websocket upgrades
				providedKey = r.URL.Query().Get("apiKey")
			}
			if providedKey == "" {
				unauthorized(w, "API key is required.")
				return
			}
			if !check(providedKey) {
				unauthorized(w, "Invalid API key.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func keyChecker(cfg config.Security) func(string) bool {
	switch {
	case cfg.APIKey != "":
		return func(provided string) bool {
			return constantTimeEquals(cfg.APIKey, provided)
		}
	case cfg.APIKeyHash != "":
		hash := []byte(cfg.APIKeyHash)
		return func(provided string) bool {
			return bcrypt.CompareHashAndPassword(hash, []byte(provided)) == nil
		}
	}
	return nil
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// constantTimeEquals performs a constant-time string comparison
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
