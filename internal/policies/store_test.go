package policies

import (
	"database/sql"
	"encoding/json"
	"testing"

	_ "modernc.org/sqlite"

	wardendb "warden/internal/db"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := wardendb.CreateSchema(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSetAndGet(t *testing.T) {
	db := setupTestDB(t)

	value := json.RawMessage(`{"enabled":true,"excludedTypes":["development"]}`)
	if err := Set(db, PolicyAutoDisableNewExtensions, value); err != nil {
		t.Fatal(err)
	}

	p, err := Get(db, PolicyAutoDisableNewExtensions)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("policy should exist")
	}
	if !p.IsActive {
		t.Error("set policies are active")
	}

	var decoded AutoDisablePolicy
	if err := json.Unmarshal(p.Value, &decoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.Enabled || len(decoded.ExcludedTypes) != 1 {
		t.Errorf("value did not round-trip: %+v", decoded)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)

	p, err := Get(db, PolicyExtensionWhitelist)
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Error("missing policy should return nil")
	}
}

func TestSetReplacesWholeValue(t *testing.T) {
	db := setupTestDB(t)

	if err := Set(db, PolicyAutoLogoutOnDisable, json.RawMessage(`{"enabled":true,"clearCookies":true}`)); err != nil {
		t.Fatal(err)
	}
	if err := Set(db, PolicyAutoLogoutOnDisable, json.RawMessage(`{"enabled":false}`)); err != nil {
		t.Fatal(err)
	}

	p, _ := Get(db, PolicyAutoLogoutOnDisable)
	var decoded AutoLogoutPolicy
	if err := json.Unmarshal(p.Value, &decoded); err != nil {
		t.Fatal(err)
	}
	// Whole-document replace, not a merge.
	if decoded.Enabled || decoded.ClearCookies {
		t.Errorf("expected full replacement, got %+v", decoded)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM extension_policies").Scan(&count)
	if count != 1 {
		t.Errorf("upsert duplicated the row: %d", count)
	}
}

func TestSetRejectsInvalidJSON(t *testing.T) {
	db := setupTestDB(t)

	if err := Set(db, PolicyExtensionWhitelist, json.RawMessage(`{broken`)); err == nil {
		t.Error("invalid JSON should be rejected")
	}
	if err := Set(db, PolicyExtensionWhitelist, nil); err == nil {
		t.Error("empty value should be rejected")
	}
	if err := Set(db, "", json.RawMessage(`{}`)); err == nil {
		t.Error("empty name should be rejected")
	}
}

func TestUnknownNamesAreLegal(t *testing.T) {
	db := setupTestDB(t)

	if err := Set(db, "custom_site_policy", json.RawMessage(`{"foo":1}`)); err != nil {
		t.Fatal(err)
	}
	p, err := Get(db, "custom_site_policy")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Error("unknown policy names are storable")
	}
}

func TestGetKnown(t *testing.T) {
	db := setupTestDB(t)

	if err := Set(db, PolicyAutoDisableNewExtensions, json.RawMessage(`{"enabled":true}`)); err != nil {
		t.Fatal(err)
	}
	if err := Set(db, "custom_site_policy", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}

	known, err := GetKnown(db)
	if err != nil {
		t.Fatal(err)
	}
	if len(known) != 1 {
		t.Fatalf("expected 1 known policy, got %d", len(known))
	}
	if _, ok := known[PolicyAutoDisableNewExtensions]; !ok {
		t.Error("recognized policy missing from GetKnown")
	}
}
