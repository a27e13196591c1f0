package tokens

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"warden/internal/version"
)

const timeFormat = "2006-01-02 15:04:05"

// defaultExtensionName is recorded when a previously unseen instance
// authenticates and its registry row is created implicitly.
const defaultExtensionName = "Warden Extension"

// Issue returns a bearer token for the extension instance. If an
// unexpired token already exists it is returned unchanged, so an
// instance that re-authenticates repeatedly does not churn tokens.
// Minting a new token also ensures the instance's registry row exists.
func Issue(db *sql.DB, extensionID string, ttl time.Duration) (string, error) {
	var existing string
	err := db.QueryRow(`
		SELECT token FROM api_tokens
		WHERE extension_id = ? AND expires_at > datetime('now')
		ORDER BY created_at DESC
		LIMIT 1
	`, extensionID).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("look up token for %s: %w", extensionID, err)
	}

	raw := make([]byte, 32)
	rand.Read(raw)
	token := hex.EncodeToString(raw)

	if err := EnsureRegistered(db, extensionID); err != nil {
		return "", err
	}

	expiresAt := time.Now().UTC().Add(ttl)
	_, err = db.Exec(`
		INSERT INTO api_tokens (extension_id, token, expires_at)
		VALUES (?, ?, ?)
	`, extensionID, token, expiresAt.Format(timeFormat))
	if err != nil {
		return "", fmt.Errorf("store token for %s: %w", extensionID, err)
	}

	return token, nil
}

// EnsureRegistered creates the extensions row for the instance if it is
// missing, otherwise stamps last_sync and reactivates it. This is the
// lightweight registry gating API access; browser-level enablement lives
// in managed_extensions and is deliberately a separate flag.
func EnsureRegistered(db *sql.DB, extensionID string) error {
	now := time.Now().UTC().Format(timeFormat)
	_, err := db.Exec(`
		INSERT INTO extensions (extension_id, name, version, last_sync, is_active)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(extension_id) DO UPDATE SET
			last_sync = excluded.last_sync,
			is_active = 1,
			updated_at = CURRENT_TIMESTAMP
	`, extensionID, defaultExtensionName, version.Version, now)
	if err != nil {
		return fmt.Errorf("ensure extension %s registered: %w", extensionID, err)
	}
	return nil
}

// Validate checks a bearer token and returns the extension instance it
// is bound to. A token is valid only while unexpired and while the
// owning extensions row is active. The last_used_at and last_sync
// stamps are fire-and-forget and never fail the validation result.
func Validate(db *sql.DB, token string) (string, bool) {
	if token == "" {
		return "", false
	}

	var id int64
	var extensionID string
	var extensionActive int
	err := db.QueryRow(`
		SELECT t.id, t.extension_id, COALESCE(e.is_active, 0)
		FROM api_tokens t
		LEFT JOIN extensions e ON t.extension_id = e.extension_id
		WHERE t.token = ? AND t.expires_at > datetime('now')
		ORDER BY t.created_at DESC
		LIMIT 1
	`, token).Scan(&id, &extensionID, &extensionActive)
	if err != nil {
		return "", false
	}

	if extensionActive == 0 {
		return "", false
	}

	now := time.Now().UTC().Format(timeFormat)
	db.Exec("UPDATE api_tokens SET last_used_at = ? WHERE id = ?", now, id)
	db.Exec("UPDATE extensions SET last_sync = ? WHERE extension_id = ?", now, extensionID)

	return extensionID, true
}

// CleanupExpired deletes all expired tokens and returns the count
// removed. Safe to run concurrently and repeatedly.
func CleanupExpired(db *sql.DB) (int64, error) {
	result, err := db.Exec("DELETE FROM api_tokens WHERE expires_at <= datetime('now')")
	if err != nil {
		return 0, fmt.Errorf("cleanup expired tokens: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// SetExtensionActive flips the lightweight extensions.is_active flag.
// Deactivating an instance immediately fails validation for its tokens
// without deleting the token rows.
func SetExtensionActive(db *sql.DB, extensionID string, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	result, err := db.Exec(
		"UPDATE extensions SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE extension_id = ?",
		flag, extensionID,
	)
	if err != nil {
		return fmt.Errorf("update extension %s status: %w", extensionID, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("extension %s not found", extensionID)
	}
	return nil
}

// Extension is a row from the lightweight extensions registry.
type Extension struct {
	ID          int64      `json:"id"`
	ExtensionID string     `json:"extension_id"`
	Name        string     `json:"name"`
	Version     string     `json:"version"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	IsActive    bool       `json:"is_active"`
}

// ListExtensions returns all known instances ordered by most recent sync.
// This is the read surface the admin console uses.
func ListExtensions(db *sql.DB) ([]Extension, error) {
	rows, err := db.Query(`
		SELECT id, extension_id, COALESCE(name, ''), COALESCE(version, ''), last_sync, is_active
		FROM extensions ORDER BY last_sync DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}
	defer rows.Close()

	var out []Extension
	for rows.Next() {
		var e Extension
		var lastSync sql.NullString
		var active int
		if err := rows.Scan(&e.ID, &e.ExtensionID, &e.Name, &e.Version, &lastSync, &active); err != nil {
			return nil, err
		}
		e.IsActive = active == 1
		if lastSync.Valid {
			t, _ := time.Parse(timeFormat, lastSync.String)
			e.LastSync = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
