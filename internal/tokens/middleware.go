package tokens

import (
	"context"
	"net/http"
	"strings"

	"warden/internal/api"
	"warden/internal/db"
)

// contextKey is the type for context keys in the tokens package
type contextKey string

// ExtensionIDKey is the context key carrying the authenticated extension id
const ExtensionIDKey contextKey = "extension_id"

// Enabled gates bearer enforcement. Set from main (AUTH_ENABLED); only
// turned off for local development.
var Enabled = true

// RequireToken rejects requests without a valid bearer token and places
// the authenticated extension id on the request context.
func RequireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !Enabled {
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			api.JSONError(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		extensionID, ok := Validate(db.DB, token)
		if !ok {
			api.JSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ExtensionIDKey, extensionID)
		next(w, r.WithContext(ctx))
	}
}

// ExtensionIDFromContext returns the extension id stored by RequireToken.
func ExtensionIDFromContext(r *http.Request) string {
	if id, ok := r.Context().Value(ExtensionIDKey).(string); ok {
		return id
	}
	return ""
}
