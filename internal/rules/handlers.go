package rules

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"warden/internal/api"
	"warden/internal/db"
)

// GetRules serves the active rule set consumed by extensions at page load.
// GET /api/rules
func GetRules(w http.ResponseWriter, r *http.Request) {
	set, err := AllRules(db.DB, true)
	if err != nil {
		log.Printf("❌ Failed to load rule set: %v", err)
		api.JSONError(w, "Failed to load rules", http.StatusInternalServerError)
		return
	}

	api.JSONResponse(w, map[string]interface{}{
		"success":     true,
		"urlRules":    set.URLRules,
		"cssRules":    set.CSSRules,
		"cookieRules": set.CookieRules,
	})
}

// includeInactive reports whether the caller asked for inactive rows too
// (admin surface passes ?all).
func includeInactive(r *http.Request) bool {
	return r.URL.Query().Has("all")
}

func ruleID(r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// writeStoreError maps store failures onto the error taxonomy. Raw
// storage error text stays server-side.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		api.JSONError(w, ve.Msg, http.StatusBadRequest)
		return
	}
	log.Printf("❌ %s: %v", op, err)
	api.JSONError(w, "Failed to "+op, http.StatusInternalServerError)
}

// ─── URL rules ────────────────────────────────────────────────────────────────

func listURLRules(w http.ResponseWriter, r *http.Request) {
	rules, err := ListURLRules(db.DB, !includeInactive(r))
	if err != nil {
		writeStoreError(w, "list URL rules", err)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "rules": rules})
}

func addURLRule(w http.ResponseWriter, r *http.Request) {
	var in URLRuleInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	id, err := AddURLRule(db.DB, in)
	if err != nil {
		writeStoreError(w, "add URL rule", err)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "id": id})
}

func updateURLRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(r)
	if !ok {
		api.JSONError(w, "Rule ID is required", http.StatusBadRequest)
		return
	}
	var in URLRuleInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	found, err := UpdateURLRule(db.DB, id, in)
	if err != nil {
		writeStoreError(w, "update URL rule", err)
		return
	}
	if !found {
		api.JSONError(w, "Rule not found", http.StatusNotFound)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true})
}

func deleteURLRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(r)
	if !ok {
		api.JSONError(w, "Rule ID is required", http.StatusBadRequest)
		return
	}
	found, err := DeleteURLRule(db.DB, id)
	if err != nil {
		writeStoreError(w, "delete URL rule", err)
		return
	}
	if !found {
		api.JSONError(w, "Rule not found", http.StatusNotFound)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true})
}

// ─── CSS rules ────────────────────────────────────────────────────────────────

func listCSSRules(w http.ResponseWriter, r *http.Request) {
	rules, err := ListCSSRules(db.DB, !includeInactive(r))
	if err != nil {
		writeStoreError(w, "list CSS rules", err)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "rules": rules})
}

func addCSSRule(w http.ResponseWriter, r *http.Request) {
	var in CSSRuleInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	id, err := AddCSSRule(db.DB, in)
	if err != nil {
		writeStoreError(w, "add CSS rule", err)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "id": id})
}

func updateCSSRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(r)
	if !ok {
		api.JSONError(w, "Rule ID is required", http.StatusBadRequest)
		return
	}
	var in CSSRuleInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	found, err := UpdateCSSRule(db.DB, id, in)
	if err != nil {
		writeStoreError(w, "update CSS rule", err)
		return
	}
	if !found {
		api.JSONError(w, "Rule not found", http.StatusNotFound)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true})
}

func deleteCSSRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(r)
	if !ok {
		api.JSONError(w, "Rule ID is required", http.StatusBadRequest)
		return
	}
	found, err := DeleteCSSRule(db.DB, id)
	if err != nil {
		writeStoreError(w, "delete CSS rule", err)
		return
	}
	if !found {
		api.JSONError(w, "Rule not found", http.StatusNotFound)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true})
}

// ─── Cookie rules ─────────────────────────────────────────────────────────────

func listCookieRules(w http.ResponseWriter, r *http.Request) {
	rules, err := ListCookieRules(db.DB, !includeInactive(r))
	if err != nil {
		writeStoreError(w, "list cookie rules", err)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "rules": rules})
}

func addCookieRule(w http.ResponseWriter, r *http.Request) {
	var in CookieRuleInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	id, err := AddCookieRule(db.DB, in)
	if err != nil {
		writeStoreError(w, "add cookie rule", err)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "id": id})
}

func updateCookieRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(r)
	if !ok {
		api.JSONError(w, "Rule ID is required", http.StatusBadRequest)
		return
	}
	var in CookieRuleInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	found, err := UpdateCookieRule(db.DB, id, in)
	if err != nil {
		writeStoreError(w, "update cookie rule", err)
		return
	}
	if !found {
		api.JSONError(w, "Rule not found", http.StatusNotFound)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true})
}

func deleteCookieRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(r)
	if !ok {
		api.JSONError(w, "Rule ID is required", http.StatusBadRequest)
		return
	}
	found, err := DeleteCookieRule(db.DB, id)
	if err != nil {
		writeStoreError(w, "delete cookie rule", err)
		return
	}
	if !found {
		api.JSONError(w, "Rule not found", http.StatusNotFound)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true})
}

// RegisterRoutes mounts the rule endpoints behind the token middleware.
func RegisterRoutes(mux *http.ServeMux, protect func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /api/rules", protect(GetRules))

	mux.HandleFunc("GET /api/url-rules", protect(listURLRules))
	mux.HandleFunc("POST /api/url-rules", protect(addURLRule))
	mux.HandleFunc("PUT /api/url-rules", protect(updateURLRule))
	mux.HandleFunc("DELETE /api/url-rules", protect(deleteURLRule))

	mux.HandleFunc("GET /api/css-rules", protect(listCSSRules))
	mux.HandleFunc("POST /api/css-rules", protect(addCSSRule))
	mux.HandleFunc("PUT /api/css-rules", protect(updateCSSRule))
	mux.HandleFunc("DELETE /api/css-rules", protect(deleteCSSRule))

	mux.HandleFunc("GET /api/cookie-rules", protect(listCookieRules))
	mux.HandleFunc("POST /api/cookie-rules", protect(addCookieRule))
	mux.HandleFunc("PUT /api/cookie-rules", protect(updateCookieRule))
	mux.HandleFunc("DELETE /api/cookie-rules", protect(deleteCookieRule))
}
