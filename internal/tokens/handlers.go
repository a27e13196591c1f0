package tokens

import (
	"log"
	"net/http"
	"time"

	"warden/internal/api"
	"warden/internal/db"
)

type authRequest struct {
	ExtensionID string `json:"extensionId"`
}

// Authenticate issues a bearer token for an extension instance.
// POST /api/auth
func Authenticate(ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		if req.ExtensionID == "" {
			api.JSONError(w, "Extension ID is required", http.StatusBadRequest)
			return
		}

		token, err := Issue(db.DB, req.ExtensionID, ttl)
		if err != nil {
			log.Printf("❌ Token issuance failed for %s: %v", req.ExtensionID, err)
			api.JSONError(w, "Failed to create token", http.StatusInternalServerError)
			return
		}

		api.JSONResponse(w, map[string]interface{}{
			"success":   true,
			"token":     token,
			"expiresIn": int64(ttl.Seconds()),
		})
	}
}

// RegisterRoutes mounts the auth endpoint. The protect wrapper is the
// per-IP rate limiter guarding token issuance.
func RegisterRoutes(mux *http.ServeMux, ttl time.Duration, protect func(http.HandlerFunc) http.HandlerFunc) {
	handler := Authenticate(ttl)
	if protect != nil {
		handler = protect(handler)
	}
	mux.HandleFunc("POST /api/auth", handler)
}
