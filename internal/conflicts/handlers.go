package conflicts

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"warden/internal/api"
	"warden/internal/db"
	"warden/internal/events"
	"warden/internal/registry"
)

// Bus receives conflict events for the notifier and the live feed.
// Set from main; nil-safe for tests.
var Bus *events.Bus

func publish(e events.Event) {
	if Bus != nil {
		Bus.Publish(e)
	}
}

var getActions = map[string]http.HandlerFunc{
	"list_conflicts": handleListConflicts,
	"blacklist":      handleBlacklist,
	"statistics":     handleStatistics,
	"violation_logs": handleViolationLogs,
}

var postActions = map[string]http.HandlerFunc{
	"report_conflict":     handleReportConflict,
	"violation_detected":  handleViolationDetected,
	"add_blacklist_entry": handleAddBlacklistEntry,
}

var putActions = map[string]http.HandlerFunc{
	"resolve_conflicts":       handleResolveConflicts,
	"toggle_blacklist_status": handleToggleBlacklistStatus,
}

var deleteActions = map[string]http.HandlerFunc{
	"remove_blacklist_entry": handleRemoveBlacklistEntry,
}

// RegisterRoutes mounts the conflict resource behind the token middleware.
func RegisterRoutes(mux *http.ServeMux, protect func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /api/extension-conflicts", protect(api.Dispatch(getActions, "list_conflicts")))
	mux.HandleFunc("POST /api/extension-conflicts", protect(api.Dispatch(postActions, "report_conflict")))
	mux.HandleFunc("PUT /api/extension-conflicts", protect(api.Dispatch(putActions, "resolve_conflicts")))
	mux.HandleFunc("DELETE /api/extension-conflicts", protect(api.Dispatch(deleteActions, "remove_blacklist_entry")))
}

func writeStoreError(w http.ResponseWriter, err error, fallback string) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		api.JSONError(w, verr.Msg, http.StatusBadRequest)
		return
	}
	log.Printf("❌ %s: %v", fallback, err)
	api.JSONError(w, fallback, http.StatusInternalServerError)
}

// ─── GET ──────────────────────────────────────────────────────────────────────

func handleListConflicts(w http.ResponseWriter, r *http.Request) {
	extensionID := r.URL.Query().Get("extension_id")
	if extensionID == "" {
		api.JSONError(w, "Extension ID is required", http.StatusBadRequest)
		return
	}

	unresolvedOnly := true
	if raw := r.URL.Query().Get("unresolved_only"); raw != "" {
		unresolvedOnly = raw != "false" && raw != "0"
	}

	records, err := ListConflicts(db.DB, extensionID, unresolvedOnly)
	if err != nil {
		writeStoreError(w, err, "Failed to list conflicts")
		return
	}
	hasActive, err := HasActive(db.DB, extensionID)
	if err != nil {
		writeStoreError(w, err, "Failed to check active conflicts")
		return
	}
	api.JSONResponse(w, map[string]interface{}{
		"success":              true,
		"conflicts":            records,
		"has_active_conflicts": hasActive,
	})
}

func handleBlacklist(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if raw := r.URL.Query().Get("active_only"); raw != "" {
		activeOnly = raw != "false" && raw != "0"
	}

	entries, err := ListBlacklist(db.DB, activeOnly)
	if err != nil {
		writeStoreError(w, err, "Failed to get blacklist")
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "blacklist": entries})
}

func handleStatistics(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "week"
	}

	stats, err := ComputeStatistics(db.DB, period)
	if err != nil {
		writeStoreError(w, err, "Failed to compute statistics")
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "statistics": stats})
}

func handleViolationLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := ListViolations(db.DB, r.URL.Query().Get("extension_id"), limit)
	if err != nil {
		writeStoreError(w, err, "Failed to get violation logs")
		return
	}
	api.JSONResponse(w, map[string]interface{}{"success": true, "logs": logs})
}

// ─── POST ─────────────────────────────────────────────────────────────────────

type reportRequest struct {
	ExtensionID string             `json:"extensionId"`
	Conflicts   []ReportedConflict `json:"conflicts"`
	Timestamp   string             `json:"timestamp"`
}

type violationDetail struct {
	ExtensionID string `json:"extension_id"`
	Name        string `json:"extension_name"`
	DetectedAs  string `json:"detected_as"`
}

// handleReportConflict fans one report out into a conflict record per
// detected extension, a single violation log entry, and an audit record.
func handleReportConflict(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExtensionID == "" || len(req.Conflicts) == 0 {
		api.JSONError(w, "Extension ID and conflicts are required", http.StatusBadRequest)
		return
	}

	conflictIDs := []int64{}
	details := []violationDetail{}
	for _, c := range req.Conflicts {
		id, err := AddConflict(db.DB, req.ExtensionID, c)
		if err != nil {
			log.Printf("⚠️ Failed to record conflict %s for %s: %v", c.ID, req.ExtensionID, err)
			continue
		}
		conflictIDs = append(conflictIDs, id)

		detectedAs := c.DetectedAs
		if detectedAs == "" {
			detectedAs = "unknown"
		}
		details = append(details, violationDetail{ExtensionID: c.ID, Name: c.Name, DetectedAs: detectedAs})
	}

	violationID, err := LogViolation(db.DB, ViolationInput{
		ExtensionID:       req.ExtensionID,
		UserIP:            api.ClientIP(r),
		UserAgent:         r.UserAgent(),
		ViolationType:     "conflicting_extensions_detected",
		Details:           details,
		ConflictsDetected: len(req.Conflicts),
		ActionTaken:       "extension_disabled",
	})
	if err != nil {
		writeStoreError(w, err, "Failed to log violation")
		return
	}

	if err := registry.RecordLog(db.DB, registry.LogEntry{
		ExtensionID: req.ExtensionID,
		Action:      "conflict_reported",
		TriggeredBy: "extension",
		Source:      "extension",
		UserIP:      api.ClientIP(r),
	}); err != nil {
		log.Printf("⚠️ Failed to record conflict audit for %s: %v", req.ExtensionID, err)
	}

	publish(events.Event{
		Type:        events.ConflictReported,
		Severity:    events.SeverityWarning,
		ExtensionID: req.ExtensionID,
		Message:     fmt.Sprintf("Extension %s reported %d conflicting extensions", req.ExtensionID, len(req.Conflicts)),
		Metadata:    map[string]string{"conflicts": strconv.Itoa(len(req.Conflicts))},
	})
	api.JSONResponse(w, map[string]interface{}{
		"success":      true,
		"message":      "Conflicts reported successfully",
		"conflict_ids": conflictIDs,
		"violation_id": violationID,
	})
}

func handleViolationDetected(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExtensionID == "" {
		api.JSONError(w, "Extension ID is required", http.StatusBadRequest)
		return
	}

	violationID, err := LogViolation(db.DB, ViolationInput{
		ExtensionID:   req.ExtensionID,
		UserIP:        api.ClientIP(r),
		UserAgent:     r.UserAgent(),
		ViolationType: "privacy_policy_violation",
		Details: map[string]interface{}{
			"conflicts":  req.Conflicts,
			"timestamp":  req.Timestamp,
			"user_agent": r.UserAgent(),
			"ip_address": api.ClientIP(r),
		},
		ConflictsDetected: len(req.Conflicts),
		ActionTaken:       "extension_blocked",
	})
	if err != nil {
		writeStoreError(w, err, "Failed to log violation")
		return
	}

	publish(events.Event{
		Type:        events.ViolationDetected,
		Severity:    events.SeverityCritical,
		ExtensionID: req.ExtensionID,
		Message:     fmt.Sprintf("Privacy policy violation reported by extension %s", req.ExtensionID),
	})
	api.JSONResponse(w, map[string]interface{}{
		"success":      true,
		"message":      "Violation logged successfully",
		"violation_id": violationID,
	})
}

func handleAddBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	var in BlacklistInput
	if err := api.DecodeJSON(r, &in); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := UpsertBlacklistEntry(db.DB, in); err != nil {
		writeStoreError(w, err, "Failed to add blacklist entry")
		return
	}

	publish(events.Event{
		Type:        events.BlacklistUpdated,
		Severity:    events.SeverityInfo,
		ExtensionID: in.ExtensionID,
		Message:     fmt.Sprintf("Added %s to conflicts blacklist", in.Name),
	})
	api.JSONResponse(w, map[string]interface{}{
		"success": true,
		"message": "Blacklist entry added successfully",
	})
}

// ─── PUT ──────────────────────────────────────────────────────────────────────

type resolveRequest struct {
	ExtensionID string  `json:"extension_id"`
	ConflictIDs []int64 `json:"conflict_ids"`
}

func handleResolveConflicts(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExtensionID == "" {
		req.ExtensionID = r.URL.Query().Get("extension_id")
	}
	if req.ExtensionID == "" {
		api.JSONError(w, "Extension ID is required", http.StatusBadRequest)
		return
	}

	resolved, err := Resolve(db.DB, req.ExtensionID, req.ConflictIDs)
	if err != nil {
		writeStoreError(w, err, "Failed to resolve conflicts")
		return
	}

	if resolved > 0 {
		publish(events.Event{
			Type:        events.ConflictsResolved,
			Severity:    events.SeverityInfo,
			ExtensionID: req.ExtensionID,
			Message:     fmt.Sprintf("Resolved %d conflicts for extension %s", resolved, req.ExtensionID),
		})
	}
	api.JSONResponse(w, map[string]interface{}{
		"success": true,
		"message": "Conflicts resolved successfully",
	})
}

type blacklistToggleRequest struct {
	ExtensionID string `json:"extension_id"`
	IsActive    *bool  `json:"is_active"`
}

func handleToggleBlacklistStatus(w http.ResponseWriter, r *http.Request) {
	var req blacklistToggleRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExtensionID == "" {
		req.ExtensionID = r.URL.Query().Get("extension_id")
	}
	if req.ExtensionID == "" {
		api.JSONError(w, "Extension ID is required", http.StatusBadRequest)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	found, err := ToggleBlacklistEntry(db.DB, req.ExtensionID, active)
	if err != nil {
		writeStoreError(w, err, "Failed to toggle blacklist entry status")
		return
	}
	if !found {
		api.JSONError(w, "Blacklist entry not found", http.StatusNotFound)
		return
	}

	status := "deactivated"
	if active {
		status = "activated"
	}
	publish(events.Event{
		Type:        events.BlacklistUpdated,
		Severity:    events.SeverityInfo,
		ExtensionID: req.ExtensionID,
		Message:     fmt.Sprintf("Blacklist entry %s %s", req.ExtensionID, status),
	})
	api.JSONResponse(w, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Blacklist entry %s successfully", status),
	})
}

// ─── DELETE ───────────────────────────────────────────────────────────────────

func handleRemoveBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	extensionID := r.URL.Query().Get("extension_id")
	if extensionID == "" {
		api.JSONError(w, "Extension ID is required", http.StatusBadRequest)
		return
	}

	found, err := RemoveBlacklistEntry(db.DB, extensionID)
	if err != nil {
		writeStoreError(w, err, "Failed to remove blacklist entry")
		return
	}
	if !found {
		api.JSONError(w, "Blacklist entry not found", http.StatusNotFound)
		return
	}

	publish(events.Event{
		Type:        events.BlacklistUpdated,
		Severity:    events.SeverityInfo,
		ExtensionID: extensionID,
		Message:     fmt.Sprintf("Removed extension %s from blacklist", extensionID),
	})
	api.JSONResponse(w, map[string]interface{}{
		"success": true,
		"message": "Blacklist entry removed successfully",
	})
}
