package registry

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"warden/internal/api"
	"warden/internal/db"
	"warden/internal/events"
	"warden/internal/policies"
)

// Bus receives fleet events for the notifier and the live admin feed.
// Set from main; nil-safe for tests that exercise handlers directly.
var Bus *events.Bus

func publish(e events.Event) {
	if Bus != nil {
		Bus.Publish(e)
	}
}

// Each verb dispatches on a closed action set; anything else is a
// single well-defined 400.
var getActions = map[string]http.HandlerFunc{
	"list":              handleList,
	"get":               handleGet,
	"stats":             handleStats,
	"logs":              handleLogs,
	"policies":          handlePolicies,
	"requiring_control": handleRequiringControl,
}

var postActions = map[string]http.HandlerFunc{
	"register":       handleRegister,
	"control_action": handleControlAction,
}

var putActions = map[string]http.HandlerFunc{
	"update":              handleToggleStatus,
	"toggle_status":       handleToggleStatus,
	"set_backend_control": handleSetBackendControl,
	"update_policy":       handleUpdatePolicy,
}

var deleteActions = map[string]http.HandlerFunc{
	"delete":       handleDelete,
	"cleanup_logs": handleCleanupLogs,
}

// RegisterRoutes mounts the extension-management resource behind the
// token middleware.
func RegisterRoutes(mux *http.ServeMux, protect func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /api/extension-management", protect(api.Dispatch(getActions, "list")))
	mux.HandleFunc("POST /api/extension-management", protect(api.Dispatch(postActions, "register")))
	mux.HandleFunc("PUT /api/extension-management", protect(api.Dispatch(putActions, "update")))
	mux.HandleFunc("DELETE /api/extension-management", protect(api.Dispatch(deleteActions, "delete")))
}

// ─── GET ──────────────────────────────────────────────────────────────────────

func handleList(w http.ResponseWriter, r *http.Request) {
	backendOnly := true
	if raw := r.URL.Query().Get("backend_controlled_only"); raw != "" {
		backendOnly = raw != "false" && raw != "0"
	}

	extensions, err := List(db.DB, backendOnly)
	if err != nil {
		log.Printf("❌ Failed to list managed extensions: %v", err)
		api.JSONError(w, "Failed to list extensions", http.StatusInternalServerError)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "extensions": extensions})
}

func handleGet(w http.ResponseWriter, r *http.Request) {
	extensionID := r.URL.Query().Get("extension_id")
	if extensionID == "" {
		api.JSONError(w, "Extension ID is required", http.StatusBadRequest)
		return
	}

	ext, err := Get(db.DB, extensionID)
	if err != nil {
		log.Printf("❌ Failed to get extension %s: %v", extensionID, err)
		api.JSONError(w, "Failed to get extension", http.StatusInternalServerError)
		return
	}
	if ext == nil {
		api.JSONError(w, "Extension not found", http.StatusNotFound)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "extension": ext})
}

func handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := GetStats(db.DB)
	if err != nil {
		log.Printf("❌ Failed to compute fleet stats: %v", err)
		api.JSONError(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "stats": stats})
}

func handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := ListLogs(db.DB, r.URL.Query().Get("extension_id"), limit)
	if err != nil {
		log.Printf("❌ Failed to list management logs: %v", err)
		api.JSONError(w, "Failed to get logs", http.StatusInternalServerError)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "logs": logs})
}

func handlePolicies(w http.ResponseWriter, r *http.Request) {
	known, err := policies.GetKnown(db.DB)
	if err != nil {
		log.Printf("❌ Failed to load policies: %v", err)
		api.JSONError(w, "Failed to get policies", http.StatusInternalServerError)
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "policies": known})
}

// handleRequiringControl lists backend-controlled extensions that are
// currently disabled (legacy compatibility for older extension builds).
func handleRequiringControl(w http.ResponseWriter, r *http.Request) {
	extensions, err := List(db.DB, true)
	if err != nil {
		log.Printf("❌ Failed to list managed extensions: %v", err)
		api.JSONError(w, "Failed to list extensions", http.StatusInternalServerError)
		return
	}

	requiring := []ManagedExtension{}
	for _, ext := range extensions {
		if !ext.IsEnabled {
			requiring = append(requiring, ext)
		}
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "extensions": requiring})
}

// ─── POST ─────────────────────────────────────────────────────────────────────

type registerRequest struct {
	RegisterInput
	Extensions []RegisterInput `json:"extensions"`
}

func handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	// Batch form: N independent rows, partial success by design.
	if len(req.Extensions) > 0 {
		result := RegisterBatch(db.DB, req.Extensions)
		api.JSONResponse(w, map[string]interface{}{
			"success":    true,
			"registered": result.SuccessCount,
			"total":      result.TotalCount,
			"errors":     result.Errors,
		})
		return
	}

	if req.ExtensionID == "" || req.Name == "" {
		api.JSONError(w, "Extension ID and extension name are required", http.StatusBadRequest)
		return
	}

	if err := Register(db.DB, req.RegisterInput); err != nil {
		log.Printf("❌ Failed to register extension %s: %v", req.ExtensionID, err)
		api.JSONError(w, "Failed to register extension", http.StatusInternalServerError)
		return
	}

	publish(events.Event{
		Type:        events.ExtensionRegistered,
		Severity:    events.SeverityInfo,
		ExtensionID: req.ExtensionID,
		Message:     fmt.Sprintf("Extension %s registered", req.Name),
	})
	api.JSONResponse(w, map[string]interface{}{
		"success": true,
		"message": "Extension registered successfully",
	})
}

type controlActionRequest struct {
	ExtensionID string          `json:"extension_id"`
	ActionType  string          `json:"action_type"`
	Details     json.RawMessage `json:"details"`
	TriggeredBy string          `json:"triggered_by"`
	Source      string          `json:"source"`
}

// handleControlAction lets extensions record their own management
// actions into the audit log.
func handleControlAction(w http.ResponseWriter, r *http.Request) {
	var req controlActionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExtensionID == "" || req.ActionType == "" {
		api.JSONError(w, "Extension ID and action type are required", http.StatusBadRequest)
		return
	}

	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "extension"
	}
	source := req.Source
	if source == "" {
		source = "extension"
	}

	if err := RecordLog(db.DB, LogEntry{
		ExtensionID: req.ExtensionID,
		Action:      req.ActionType,
		TriggeredBy: triggeredBy,
		Source:      source,
		Details:     req.Details,
		UserIP:      api.ClientIP(r),
	}); err != nil {
		log.Printf("❌ Failed to log control action for %s: %v", req.ExtensionID, err)
		api.JSONError(w, "Failed to log action", http.StatusInternalServerError)
		return
	}

	api.JSONResponse(w, map[string]interface{}{
		"success": true,
		"message": "Action logged successfully",
	})
}

// ─── PUT ──────────────────────────────────────────────────────────────────────

type toggleStatusRequest struct {
	ExtensionID string `json:"extension_id"`
	IsEnabled   bool   `json:"is_enabled"`
	TriggeredBy string `json:"triggered_by"`
}

func handleToggleStatus(w http.ResponseWriter, r *http.Request) {
	var req toggleStatusRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExtensionID == "" {
		api.JSONError(w, "Extension ID is required", http.StatusBadRequest)
		return
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "admin"
	}

	found, err := SetEnabled(db.DB, req.ExtensionID, req.IsEnabled, triggeredBy, "backend", api.ClientIP(r))
	if err != nil {
		log.Printf("❌ Failed to update status for %s: %v", req.ExtensionID, err)
		api.JSONError(w, "Failed to update extension status", http.StatusInternalServerError)
		return
	}
	if !found {
		api.JSONError(w, "Extension not found", http.StatusNotFound)
		return
	}

	state := "disabled"
	if req.IsEnabled {
		state = "enabled"
	}
	publish(events.Event{
		Type:        events.ExtensionStateChanged,
		Severity:    events.SeverityInfo,
		ExtensionID: req.ExtensionID,
		Message:     fmt.Sprintf("Extension %s %s by %s", req.ExtensionID, state, triggeredBy),
		Metadata:    map[string]string{"state": state, "triggered_by": triggeredBy},
	})
	api.JSONResponse(w, map[string]interface{}{
		"success": true,
		"message": "Extension status updated successfully",
	})
}

type backendControlRequest struct {
	ExtensionID       string `json:"extension_id"`
	BackendControlled *bool  `json:"backend_controlled"`
}

func handleSetBackendControl(w http.ResponseWriter, r *http.Request) {
	var req backendControlRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExtensionID == "" {
		api.JSONError(w, "Extension ID is required", http.StatusBadRequest)
		return
	}
	controlled := true
	if req.BackendControlled != nil {
		controlled = *req.BackendControlled
	}

	found, err := SetBackendControlled(db.DB, req.ExtensionID, controlled)
	if err != nil {
		log.Printf("❌ Failed to set backend control for %s: %v", req.ExtensionID, err)
		api.JSONError(w, "Failed to update backend control status", http.StatusInternalServerError)
		return
	}
	if !found {
		api.JSONError(w, "Extension not found", http.StatusNotFound)
		return
	}
	api.JSONResponse(w, map[string]interface{}{
		"success": true,
		"message": "Backend control status updated successfully",
	})
}

type updatePolicyRequest struct {
	PolicyName  string          `json:"policy_name"`
	PolicyValue json.RawMessage `json:"policy_value"`
}

func handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var req updatePolicyRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.PolicyName == "" {
		api.JSONError(w, "Policy name is required", http.StatusBadRequest)
		return
	}
	if len(req.PolicyValue) == 0 || !json.Valid(req.PolicyValue) {
		api.JSONError(w, "Policy value must be valid JSON", http.StatusBadRequest)
		return
	}

	if err := policies.Set(db.DB, req.PolicyName, req.PolicyValue); err != nil {
		log.Printf("❌ Failed to update policy %s: %v", req.PolicyName, err)
		api.JSONError(w, "Failed to update policy", http.StatusInternalServerError)
		return
	}

	publish(events.Event{
		Type:     events.PolicyUpdated,
		Severity: events.SeverityInfo,
		Message:  fmt.Sprintf("Policy %s updated", req.PolicyName),
	})
	api.JSONResponse(w, map[string]interface{}{
		"success": true,
		"message": "Policy updated successfully",
	})
}

// ─── DELETE ───────────────────────────────────────────────────────────────────

func handleDelete(w http.ResponseWriter, r *http.Request) {
	extensionID := r.URL.Query().Get("extension_id")
	if extensionID == "" {
		api.JSONError(w, "Extension ID is required", http.StatusBadRequest)
		return
	}

	found, err := Delete(db.DB, extensionID, "admin", api.ClientIP(r))
	if err != nil {
		log.Printf("❌ Failed to delete extension %s: %v", extensionID, err)
		api.JSONError(w, "Failed to delete extension", http.StatusInternalServerError)
		return
	}
	if !found {
		api.JSONError(w, "Extension not found", http.StatusNotFound)
		return
	}

	publish(events.Event{
		Type:        events.ExtensionDeleted,
		Severity:    events.SeverityInfo,
		ExtensionID: extensionID,
		Message:     fmt.Sprintf("Extension %s removed from the registry", extensionID),
	})
	api.JSONResponse(w, map[string]interface{}{
		"success": true,
		"message": "Extension deleted successfully",
	})
}

func handleCleanupLogs(w http.ResponseWriter, r *http.Request) {
	daysToKeep, _ := strconv.Atoi(r.URL.Query().Get("days_to_keep"))
	if daysToKeep <= 0 {
		daysToKeep = 30
	}

	deleted, err := CleanupLogs(db.DB, daysToKeep)
	if err != nil {
		log.Printf("❌ Failed to cleanup management logs: %v", err)
		api.JSONError(w, "Failed to cleanup logs", http.StatusInternalServerError)
		return
	}
	api.JSONResponse(w, map[string]interface{}{
		"success":       true,
		"message":       fmt.Sprintf("Cleaned up %d log entries", deleted),
		"deleted_count": deleted,
	})
}
