package api_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"warden/internal/api"
	"warden/internal/conflicts"
	"warden/internal/db"
	"warden/internal/registry"
	"warden/internal/rules"
	"warden/internal/tokens"
)

// setupServer wires the real mux against an in-memory database, the
// same assembly main performs.
func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.CreateSchema(testDB); err != nil {
		t.Fatal(err)
	}
	if err := conflicts.EnsureSeeded(testDB); err != nil {
		t.Fatal(err)
	}

	prev := db.DB
	db.DB = testDB
	t.Cleanup(func() {
		db.DB = prev
		testDB.Close()
	})

	handler := api.NewMux(func(mux *http.ServeMux) {
		tokens.RegisterRoutes(mux, 24*time.Hour, nil)
		rules.RegisterRoutes(mux, tokens.RequireToken)
		registry.RegisterRoutes(mux, tokens.RequireToken)
		conflicts.RegisterRoutes(mux, tokens.RequireToken)
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	return resp, decoded
}

func authenticate(t *testing.T, server *httptest.Server, extensionID string) string {
	t.Helper()
	resp, body := doJSON(t, "POST", server.URL+"/api/auth", "", map[string]string{
		"extensionId": extensionID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("auth failed with %d: %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("no token in auth response")
	}
	return token
}

func TestAuthThenRulesFlow(t *testing.T) {
	server := setupServer(t)

	token := authenticate(t, server, "ext-001")

	// A fresh token serves rules.
	resp, body := doJSON(t, "GET", server.URL+"/api/rules", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rules fetch failed with %d", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("expected success, got %v", body)
	}
	// Empty kinds serialize as [], never null.
	for _, key := range []string{"urlRules", "cssRules", "cookieRules"} {
		if _, ok := body[key].([]interface{}); !ok {
			t.Errorf("%s should be an array, got %T", key, body[key])
		}
	}

	// A corrupted token is rejected.
	resp, body = doJSON(t, "GET", server.URL+"/api/rules", token+"x", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("corrupt token: want 401, got %d", resp.StatusCode)
	}
	if body["error"] == nil {
		t.Error("error responses carry an error field")
	}

	// No header at all.
	resp, _ = doJSON(t, "GET", server.URL+"/api/rules", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing header: want 401, got %d", resp.StatusCode)
	}
}

func TestAuthValidation(t *testing.T) {
	server := setupServer(t)

	resp, body := doJSON(t, "POST", server.URL+"/api/auth", "", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing extension id: want 400, got %d", resp.StatusCode)
	}
	if body["error"] != "Extension ID is required" {
		t.Errorf("unexpected error %v", body["error"])
	}
}

func TestRuleCRUDOverHTTP(t *testing.T) {
	server := setupServer(t)
	token := authenticate(t, server, "ext-001")

	resp, body := doJSON(t, "POST", server.URL+"/api/url-rules", token, map[string]interface{}{
		"pattern": `^https://ads\..*$`,
		"action":  "block",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add rule failed with %d: %v", resp.StatusCode, body)
	}

	// Invalid action is a 400, not a 500.
	resp, _ = doJSON(t, "POST", server.URL+"/api/url-rules", token, map[string]interface{}{
		"pattern": ".*",
		"action":  "nuke",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid action: want 400, got %d", resp.StatusCode)
	}

	// Update requires ?id=.
	resp, _ = doJSON(t, "PUT", server.URL+"/api/url-rules", token, map[string]interface{}{
		"description": "x",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("update without id: want 400, got %d", resp.StatusCode)
	}

	// Unknown id is a 404.
	resp, _ = doJSON(t, "PUT", server.URL+"/api/url-rules?id=9999", token, map[string]interface{}{
		"description": "x",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown rule: want 404, got %d", resp.StatusCode)
	}
}

func TestRegisterDisableStatsFlow(t *testing.T) {
	server := setupServer(t)
	token := authenticate(t, server, "ext-001")
	base := server.URL + "/api/extension-management"

	// Register a managed extension.
	resp, body := doJSON(t, "POST", base, token, map[string]interface{}{
		"action":         "register",
		"extension_id":   "abc123",
		"extension_name": "Some Extension",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register failed with %d: %v", resp.StatusCode, body)
	}

	// Grant backend control, then disable.
	resp, _ = doJSON(t, "PUT", base, token, map[string]interface{}{
		"action":             "set_backend_control",
		"extension_id":       "abc123",
		"backend_controlled": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set_backend_control failed with %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "PUT", base, token, map[string]interface{}{
		"action":       "toggle_status",
		"extension_id": "abc123",
		"is_enabled":   false,
		"triggered_by": "admin",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle_status failed with %d", resp.StatusCode)
	}

	// Stats reflect the disable.
	resp, body = doJSON(t, "GET", base+"?action=stats", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats failed with %d", resp.StatusCode)
	}
	stats, _ := body["stats"].(map[string]interface{})
	if stats == nil {
		t.Fatalf("no stats in response: %v", body)
	}
	if stats["total_managed"].(float64) != 1 {
		t.Errorf("total_managed: want 1, got %v", stats["total_managed"])
	}
	if stats["total_disabled"].(float64) != 1 {
		t.Errorf("total_disabled: want 1, got %v", stats["total_disabled"])
	}

	// The audit log recorded the transition.
	resp, body = doJSON(t, "GET", base+"?action=logs&extension_id=abc123", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logs failed with %d", resp.StatusCode)
	}
	logs, _ := body["logs"].([]interface{})
	if len(logs) == 0 {
		t.Fatal("expected audit entries")
	}

	// Unknown action is a single well-defined 400.
	resp, body = doJSON(t, "GET", base+"?action=frobnicate", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown action: want 400, got %d", resp.StatusCode)
	}
	if body["error"] != "Invalid action" {
		t.Errorf("unexpected error %v", body["error"])
	}
}

func TestConflictReportFanout(t *testing.T) {
	server := setupServer(t)
	token := authenticate(t, server, "ext-001")
	base := server.URL + "/api/extension-conflicts"

	resp, body := doJSON(t, "POST", base, token, map[string]interface{}{
		"action":      "report_conflict",
		"extensionId": "ext-001",
		"conflicts": []map[string]string{
			{"id": "cjpalhdlnbpafiamejdnhcphjbkeiagm", "name": "uBlock Origin", "detectedAs": "blacklist_match"},
			{"id": "gighmmpiobklfepjocnamgkkbiglidom", "name": "AdBlock", "detectedAs": "blacklist_match"},
			{"id": "aapbdbdomjkkjkaonfhkkikfgjllcleb", "name": "Ghostery"},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report failed with %d: %v", resp.StatusCode, body)
	}

	conflictIDs, _ := body["conflict_ids"].([]interface{})
	if len(conflictIDs) != 3 {
		t.Errorf("expected 3 conflict ids, got %d", len(conflictIDs))
	}
	if body["violation_id"] == nil {
		t.Error("expected a violation id")
	}

	// Exactly one violation, carrying the conflict count.
	resp, body = doJSON(t, "GET", base+"?action=violation_logs&extension_id=ext-001", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("violation_logs failed with %d", resp.StatusCode)
	}
	logs, _ := body["logs"].([]interface{})
	if len(logs) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(logs))
	}
	violation := logs[0].(map[string]interface{})
	if violation["conflicts_detected"].(float64) != 3 {
		t.Errorf("conflicts_detected: want 3, got %v", violation["conflicts_detected"])
	}
	if violation["violation_type"] != "conflicting_extensions_detected" {
		t.Errorf("unexpected violation type %v", violation["violation_type"])
	}

	// Conflicts show as active until resolved.
	resp, body = doJSON(t, "GET", base+"?extension_id=ext-001", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list failed with %d", resp.StatusCode)
	}
	if body["has_active_conflicts"] != true {
		t.Error("expected active conflicts")
	}

	resp, _ = doJSON(t, "PUT", base, token, map[string]interface{}{
		"action":       "resolve_conflicts",
		"extension_id": "ext-001",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve failed with %d", resp.StatusCode)
	}

	_, body = doJSON(t, "GET", base+"?extension_id=ext-001", token, nil)
	if body["has_active_conflicts"] != false {
		t.Error("conflicts should be resolved")
	}
}

func TestBlacklistServedBySeverity(t *testing.T) {
	server := setupServer(t)
	token := authenticate(t, server, "ext-001")

	resp, body := doJSON(t, "GET", server.URL+"/api/extension-conflicts?action=blacklist", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("blacklist failed with %d", resp.StatusCode)
	}
	entries, _ := body["blacklist"].([]interface{})
	if len(entries) == 0 {
		t.Fatal("seeded blacklist should not be empty")
	}
	first := entries[0].(map[string]interface{})
	if first["severity"] != "critical" {
		t.Errorf("most severe entries come first, got %v", first["severity"])
	}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	server := setupServer(t)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: want 200, got %d", resp.StatusCode)
	}
}
