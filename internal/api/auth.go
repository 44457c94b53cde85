package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/AryanVBW/CommonsProxy-sub000/internal/config"
)

// errInvalidAuthFormat indicates the Authorization header is present but not
// in Bearer format.
var errInvalidAuthFormat = errors.New("invalid authorization header format")

// APIKeyAuth validates inbound API key authentication via the x-api-key
// header or Authorization: Bearer. /health is exempt. A missing PROXY_API_KEY
// is a server misconfiguration, not an auth failure.
func APIKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		expectedKey := config.GetProxyAPIKey()
		if expectedKey == "" {
			writeServerError(w, "Server misconfigured: PROXY_API_KEY not set")
			return
		}

		apiKey, err := extractAPIKey(r)
		if err != nil {
			writeAuthError(w, "Invalid Authorization header format")
			return
		}
		if apiKey == "" {
			writeAuthError(w, "Missing API key")
			return
		}

		// Constant-time comparison to prevent timing attacks.
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expectedKey)) != 1 {
			writeAuthError(w, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractAPIKey reads the key from x-api-key or a Bearer Authorization
// header. Returns errInvalidAuthFormat for a non-Bearer Authorization header.
func extractAPIKey(r *http.Request) (string, error) {
	if key := r.Header.Get("x-api-key"); key != "" {
		return key, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer "), nil
		}
		return "", errInvalidAuthFormat
	}

	return "", nil
}

type errorResponse struct {
	Type  string      `json:"type"`
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Type:  "error",
		Error: errorDetail{Type: "authentication_error", Message: message},
	})
}

func writeServerError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Type:  "error",
		Error: errorDetail{Type: "api_error", Message: message},
	})
}
