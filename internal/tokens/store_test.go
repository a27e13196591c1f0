package tokens

import (
	"database/sql"
	"testing"
	"time"

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

func TestIssueReturnsOpaqueToken(t *testing.T) {
	db := setupTestDB(t)

	token, err := Issue(db, "ext-001", 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char hex token, got %d chars", len(token))
	}
}

func TestIssueIsIdempotentWhileUnexpired(t *testing.T) {
	db := setupTestDB(t)

	first, err := Issue(db, "ext-001", 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Issue(db, "ext-001", 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("re-authentication minted a new token for an unexpired one")
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM api_tokens WHERE extension_id = 'ext-001'").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 token row, got %d", count)
	}
}

func TestIssueCreatesRegistryRow(t *testing.T) {
	db := setupTestDB(t)

	if _, err := Issue(db, "ext-new", 24*time.Hour); err != nil {
		t.Fatal(err)
	}

	var active int
	err := db.QueryRow("SELECT is_active FROM extensions WHERE extension_id = 'ext-new'").Scan(&active)
	if err != nil {
		t.Fatalf("extensions row was not created: %v", err)
	}
	if active != 1 {
		t.Error("new extension should be active")
	}
}

func TestEnsureRegisteredReactivates(t *testing.T) {
	db := setupTestDB(t)

	if _, err := Issue(db, "ext-001", 24*time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := SetExtensionActive(db, "ext-001", false); err != nil {
		t.Fatal(err)
	}
	if err := EnsureRegistered(db, "ext-001"); err != nil {
		t.Fatal(err)
	}

	var active int
	db.QueryRow("SELECT is_active FROM extensions WHERE extension_id = 'ext-001'").Scan(&active)
	if active != 1 {
		t.Error("EnsureRegistered should reactivate the instance")
	}
}

func TestValidate(t *testing.T) {
	db := setupTestDB(t)

	token, err := Issue(db, "ext-001", 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	extensionID, ok := Validate(db, token)
	if !ok {
		t.Fatal("freshly issued token should validate")
	}
	if extensionID != "ext-001" {
		t.Errorf("expected ext-001, got %s", extensionID)
	}

	if _, ok := Validate(db, "deadbeef"); ok {
		t.Error("unknown token should not validate")
	}
	if _, ok := Validate(db, ""); ok {
		t.Error("empty token should not validate")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	db := setupTestDB(t)

	if err := EnsureRegistered(db, "ext-001"); err != nil {
		t.Fatal(err)
	}
	expired := time.Now().UTC().Add(-time.Hour).Format(timeFormat)
	_, err := db.Exec(
		"INSERT INTO api_tokens (extension_id, token, expires_at) VALUES (?, ?, ?)",
		"ext-001", "aaaa", expired,
	)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := Validate(db, "aaaa"); ok {
		t.Error("expired token should not validate")
	}
}

func TestValidateRejectsInactiveExtension(t *testing.T) {
	db := setupTestDB(t)

	token, err := Issue(db, "ext-001", 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := SetExtensionActive(db, "ext-001", false); err != nil {
		t.Fatal(err)
	}

	if _, ok := Validate(db, token); ok {
		t.Error("token for a deactivated extension should not validate")
	}
}

func TestValidateStampsLastUsed(t *testing.T) {
	db := setupTestDB(t)

	token, err := Issue(db, "ext-001", 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := Validate(db, token); !ok {
		t.Fatal("token should validate")
	}

	var lastUsed sql.NullString
	db.QueryRow("SELECT last_used_at FROM api_tokens WHERE token = ?", token).Scan(&lastUsed)
	if !lastUsed.Valid {
		t.Error("validation should stamp last_used_at")
	}
}

func TestCleanupExpired(t *testing.T) {
	db := setupTestDB(t)

	if err := EnsureRegistered(db, "ext-001"); err != nil {
		t.Fatal(err)
	}
	expired := time.Now().UTC().Add(-time.Hour).Format(timeFormat)
	db.Exec("INSERT INTO api_tokens (extension_id, token, expires_at) VALUES ('ext-001', 'old', ?)", expired)
	if _, err := Issue(db, "ext-002", 24*time.Hour); err != nil {
		t.Fatal(err)
	}

	n, err := CleanupExpired(db)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 token removed, got %d", n)
	}

	// Idempotent
	n, err = CleanupExpired(db)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second cleanup removed %d tokens", n)
	}

	var remaining int
	db.QueryRow("SELECT COUNT(*) FROM api_tokens").Scan(&remaining)
	if remaining != 1 {
		t.Errorf("expected the unexpired token to survive, have %d rows", remaining)
	}
}

func TestListExtensions(t *testing.T) {
	db := setupTestDB(t)

	if _, err := Issue(db, "ext-001", 24*time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := Issue(db, "ext-002", 24*time.Hour); err != nil {
		t.Fatal(err)
	}

	list, err := ListExtensions(db)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 extensions, got %d", len(list))
	}
}
