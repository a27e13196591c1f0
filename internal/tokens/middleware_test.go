package tokens

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	wardendb "warden/internal/db"
)

// swapGlobalDB points the package-level connection at a test database
// because RequireToken reads it directly.
func swapGlobalDB(t *testing.T) {
	t.Helper()
	prev := wardendb.DB
	wardendb.DB = setupTestDB(t)
	t.Cleanup(func() { wardendb.DB = prev })
}

func TestRequireTokenMissingHeader(t *testing.T) {
	called := false
	handler := RequireToken(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/api/rules", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run without a token")
	}
}

func TestRequireTokenValidBearer(t *testing.T) {
	swapGlobalDB(t)

	token, err := Issue(wardendb.DB, "ext-001", 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var gotID string
	handler := RequireToken(func(w http.ResponseWriter, r *http.Request) {
		gotID = ExtensionIDFromContext(r)
	})

	req := httptest.NewRequest("GET", "/api/rules", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotID != "ext-001" {
		t.Errorf("expected extension id on context, got %q", gotID)
	}
}

func TestRequireTokenDisabledBypass(t *testing.T) {
	Enabled = false
	t.Cleanup(func() { Enabled = true })

	called := false
	handler := RequireToken(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/api/rules", nil))

	if !called {
		t.Error("disabled enforcement must pass requests through")
	}
}
