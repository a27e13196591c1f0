package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// Action returns the sub-operation selector for a request: the `action`
// query parameter if present, else the top-level "action" field of a
// JSON body, else the fallback. The body is restored so handlers can
// decode it again.
func Action(r *http.Request, fallback string) string {
	if action := r.URL.Query().Get("action"); action != "" {
		return action
	}
	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err == nil {
			var peek struct {
				Action string `json:"action"`
			}
			if json.Unmarshal(body, &peek) == nil && peek.Action != "" {
				return peek.Action
			}
		}
	}
	return fallback
}

// Dispatch routes a request to one of a closed set of action handlers.
// Unknown actions get a single well-defined 400.
func Dispatch(actions map[string]http.HandlerFunc, defaultAction string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handler, ok := actions[Action(r, defaultAction)]
		if !ok {
			JSONError(w, "Invalid action", http.StatusBadRequest)
			return
		}
		handler(w, r)
	}
}
