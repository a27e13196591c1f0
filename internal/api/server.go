package api

import (
	"net/http"
	"time"

	"warden/internal/middleware"
	"warden/internal/version"
)

// NewMux builds the API surface. The configure callback mounts
// resource routes; the returned handler carries the middleware chain.
func NewMux(configure func(mux *http.ServeMux)) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		JSONResponse(w, map[string]interface{}{
			"status":  "ok",
			"version": version.Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	configure(mux)

	return middleware.CORS(middleware.RequestID(middleware.Logging(mux)))
}
