package registry

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// Register upserts a managed extension by extension id. Registration
// updates what the extension reports about itself and stamps last_sync,
// but never touches backend_controlled: tracking an extension must not
// silently grant control over it.
func Register(db *sql.DB, in RegisterInput) error {
	if in.ExtensionID == "" || in.Name == "" {
		return fmt.Errorf("extension_id and extension_name are required")
	}

	installType := in.InstallType
	if installType == "" {
		installType = "normal"
	}
	discoveryMethod := in.DiscoveryMethod
	if discoveryMethod == "" {
		discoveryMethod = "api_sync"
	}
	enabled := 1
	if in.IsEnabled != nil && !*in.IsEnabled {
		enabled = 0
	}
	now := time.Now().UTC().Format(timeFormat)

	_, err := db.Exec(`
		INSERT INTO managed_extensions
			(extension_id, extension_name, extension_version, description,
			 install_type, is_enabled, discovery_method, last_sync)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(extension_id) DO UPDATE SET
			extension_name = excluded.extension_name,
			extension_version = excluded.extension_version,
			description = excluded.description,
			install_type = excluded.install_type,
			is_enabled = excluded.is_enabled,
			last_sync = excluded.last_sync,
			updated_at = CURRENT_TIMESTAMP
	`, in.ExtensionID, in.Name, in.Version, in.Description,
		installType, enabled, discoveryMethod, now)
	if err != nil {
		return fmt.Errorf("register extension %s: %w", in.ExtensionID, err)
	}
	return nil
}

// RegisterBatch registers N independent extensions, collecting per-row
// failures instead of aborting the batch.
func RegisterBatch(db *sql.DB, list []RegisterInput) BatchResult {
	result := BatchResult{TotalCount: len(list), Errors: []string{}}
	for _, in := range list {
		if err := Register(db, in); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.SuccessCount++
	}
	return result
}

// Get returns a managed extension by extension id, or nil if unknown.
func Get(db *sql.DB, extensionID string) (*ManagedExtension, error) {
	row := db.QueryRow(`
		SELECT id, extension_id, extension_name, COALESCE(extension_version, ''),
		       COALESCE(description, ''), install_type, is_enabled,
		       backend_controlled, discovery_method, discovered_at, last_sync
		FROM managed_extensions WHERE extension_id = ?
	`, extensionID)

	var m ManagedExtension
	var enabled, controlled int
	var discoveredAt string
	var lastSync sql.NullString
	err := row.Scan(&m.ID, &m.ExtensionID, &m.Name, &m.Version, &m.Description,
		&m.InstallType, &enabled, &controlled, &m.DiscoveryMethod, &discoveredAt, &lastSync)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get extension %s: %w", extensionID, err)
	}

	m.IsEnabled = enabled == 1
	m.BackendControlled = controlled == 1
	m.DiscoveredAt, _ = time.Parse(timeFormat, discoveredAt)
	if lastSync.Valid {
		t, _ := time.Parse(timeFormat, lastSync.String)
		m.LastSync = &t
	}
	return &m, nil
}

// List returns managed extensions, optionally restricted to
// backend-controlled rows, most recently synced first.
func List(db *sql.DB, backendControlledOnly bool) ([]ManagedExtension, error) {
	query := `
		SELECT id, extension_id, extension_name, COALESCE(extension_version, ''),
		       COALESCE(description, ''), install_type, is_enabled,
		       backend_controlled, discovery_method, discovered_at, last_sync
		FROM managed_extensions`
	if backendControlledOnly {
		query += " WHERE backend_controlled = 1"
	}
	query += " ORDER BY last_sync DESC"

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list managed extensions: %w", err)
	}
	defer rows.Close()

	out := []ManagedExtension{}
	for rows.Next() {
		var m ManagedExtension
		var enabled, controlled int
		var discoveredAt string
		var lastSync sql.NullString
		if err := rows.Scan(&m.ID, &m.ExtensionID, &m.Name, &m.Version, &m.Description,
			&m.InstallType, &enabled, &controlled, &m.DiscoveryMethod, &discoveredAt, &lastSync); err != nil {
			return nil, err
		}
		m.IsEnabled = enabled == 1
		m.BackendControlled = controlled == 1
		m.DiscoveredAt, _ = time.Parse(timeFormat, discoveredAt)
		if lastSync.Valid {
			t, _ := time.Parse(timeFormat, lastSync.String)
			m.LastSync = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetEnabled flips browser-level enablement and appends an audit entry
// recording the transition. The state write is the source of truth; a
// failed audit append is logged server-side and does not undo it. Two
// racing calls may record a stale old_state; the final persisted value
// is still last-write-wins correct.
func SetEnabled(db *sql.DB, extensionID string, enabled bool, triggeredBy, source, userIP string) (bool, error) {
	prior, err := Get(db, extensionID)
	if err != nil {
		return false, err
	}
	if prior == nil {
		return false, nil
	}

	flag := 0
	if enabled {
		flag = 1
	}
	now := time.Now().UTC().Format(timeFormat)
	_, err = db.Exec(`
		UPDATE managed_extensions
		SET is_enabled = ?, last_sync = ?, updated_at = CURRENT_TIMESTAMP
		WHERE extension_id = ?
	`, flag, now, extensionID)
	if err != nil {
		return false, fmt.Errorf("update status for %s: %w", extensionID, err)
	}

	oldState := prior.IsEnabled
	if err := RecordLog(db, LogEntry{
		ExtensionID: extensionID,
		Action:      "toggle_status",
		OldState:    &oldState,
		NewState:    &enabled,
		TriggeredBy: triggeredBy,
		Source:      source,
		UserIP:      userIP,
	}); err != nil {
		log.Printf("⚠️  Audit append failed for %s toggle_status: %v", extensionID, err)
	}

	return true, nil
}

// SetBackendControlled flips whether the backend may alter the
// extension's enablement. Independent of the enabled axis: revoking
// control never changes is_enabled.
func SetBackendControlled(db *sql.DB, extensionID string, controlled bool) (bool, error) {
	flag := 0
	if controlled {
		flag = 1
	}
	result, err := db.Exec(`
		UPDATE managed_extensions
		SET backend_controlled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE extension_id = ?
	`, flag, extensionID)
	if err != nil {
		return false, fmt.Errorf("set backend control for %s: %w", extensionID, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// Delete removes the registry row and appends a delete audit entry with
// null old/new state.
func Delete(db *sql.DB, extensionID, triggeredBy, userIP string) (bool, error) {
	result, err := db.Exec("DELETE FROM managed_extensions WHERE extension_id = ?", extensionID)
	if err != nil {
		return false, fmt.Errorf("delete extension %s: %w", extensionID, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return false, nil
	}

	if err := RecordLog(db, LogEntry{
		ExtensionID: extensionID,
		Action:      "delete",
		TriggeredBy: triggeredBy,
		Source:      "backend",
		UserIP:      userIP,
	}); err != nil {
		log.Printf("⚠️  Audit append failed for %s delete: %v", extensionID, err)
	}

	return true, nil
}

// GetStats aggregates fleet counters: enabled/disabled counts are
// restricted to backend-controlled rows, recent actions cover the last
// 24 hours, and the top ranking covers the last 7 days of audit entries.
func GetStats(db *sql.DB) (*Stats, error) {
	stats := &Stats{TopManaged: []TopExtension{}}

	err := db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN backend_controlled = 1 AND is_enabled = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN backend_controlled = 1 AND is_enabled = 0 THEN 1 ELSE 0 END), 0)
		FROM managed_extensions
	`).Scan(&stats.TotalManaged, &stats.TotalEnabled, &stats.TotalDisabled)
	if err != nil {
		return nil, fmt.Errorf("count managed extensions: %w", err)
	}

	err = db.QueryRow(`
		SELECT COUNT(*) FROM extension_management_log
		WHERE created_at >= datetime('now', '-1 day')
	`).Scan(&stats.RecentActions24h)
	if err != nil {
		return nil, fmt.Errorf("count recent actions: %w", err)
	}

	rows, err := db.Query(`
		SELECT l.extension_id, COALESCE(m.extension_name, ''), COUNT(*) as action_count
		FROM extension_management_log l
		LEFT JOIN managed_extensions m ON l.extension_id = m.extension_id
		WHERE l.created_at >= datetime('now', '-7 days')
		GROUP BY l.extension_id
		ORDER BY action_count DESC
		LIMIT 5
	`)
	if err != nil {
		return nil, fmt.Errorf("rank managed extensions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t TopExtension
		if err := rows.Scan(&t.ExtensionID, &t.Name, &t.ActionCount); err != nil {
			return nil, err
		}
		stats.TopManaged = append(stats.TopManaged, t)
	}
	return stats, rows.Err()
}
