package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// RecordLog appends one management audit entry. The log is append-only:
// there is no update operation, and corrections are made by appending a
// compensating entry.
func RecordLog(db *sql.DB, e LogEntry) error {
	if e.ExtensionID == "" || e.Action == "" {
		return fmt.Errorf("extension_id and action are required")
	}

	triggeredBy := e.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "system"
	}
	source := e.Source
	if source == "" {
		source = "backend"
	}

	var details interface{}
	if len(e.Details) > 0 {
		details = string(e.Details)
	}

	_, err := db.Exec(`
		INSERT INTO extension_management_log
			(extension_id, action, old_state, new_state, triggered_by, source, details, user_ip)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ExtensionID, e.Action, boolOrNil(e.OldState), boolOrNil(e.NewState),
		triggeredBy, source, details, e.UserIP)
	if err != nil {
		return fmt.Errorf("record management log for %s: %w", e.ExtensionID, err)
	}
	return nil
}

// ListLogs returns audit entries newest first, optionally filtered to
// one extension.
func ListLogs(db *sql.DB, extensionID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, extension_id, action, old_state, new_state,
		       triggered_by, source, COALESCE(details, ''), COALESCE(user_ip, ''), created_at
		FROM extension_management_log`
	args := []interface{}{}
	if extensionID != "" {
		query += " WHERE extension_id = ?"
		args = append(args, extensionID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list management logs: %w", err)
	}
	defer rows.Close()

	out := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		var oldState, newState sql.NullInt64
		var details, createdAt string
		if err := rows.Scan(&e.ID, &e.ExtensionID, &e.Action, &oldState, &newState,
			&e.TriggeredBy, &e.Source, &details, &e.UserIP, &createdAt); err != nil {
			return nil, err
		}
		if oldState.Valid {
			v := oldState.Int64 == 1
			e.OldState = &v
		}
		if newState.Valid {
			v := newState.Int64 == 1
			e.NewState = &v
		}
		if details != "" {
			e.Details = json.RawMessage(details)
		}
		e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CleanupLogs purges audit entries older than daysToKeep and returns
// the number removed.
func CleanupLogs(db *sql.DB, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		daysToKeep = 30
	}
	result, err := db.Exec(
		"DELETE FROM extension_management_log WHERE created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", daysToKeep),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup management logs: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func boolOrNil(b *bool) interface{} {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}
