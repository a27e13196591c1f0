package conflicts

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ViolationInput carries one violation to record.
type ViolationInput struct {
	ExtensionID       string
	UserIP            string
	UserAgent         string
	ViolationType     string
	Details           interface{}
	ConflictsDetected int
	ActionTaken       string
}

// LogViolation appends a violation record and returns its row ID.
func LogViolation(db *sql.DB, in ViolationInput) (int64, error) {
	if in.ExtensionID == "" || in.ViolationType == "" {
		return 0, invalid("Extension ID and violation type are required")
	}
	if in.ActionTaken == "" {
		in.ActionTaken = "extension_disabled"
	}

	details, err := json.Marshal(in.Details)
	if err != nil {
		return 0, fmt.Errorf("failed to encode violation details: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO violation_logs
			(extension_id, user_ip, user_agent, violation_type, violation_details, conflicts_detected, action_taken)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ExtensionID, in.UserIP, in.UserAgent, in.ViolationType,
		string(details), in.ConflictsDetected, in.ActionTaken)
	if err != nil {
		return 0, fmt.Errorf("failed to log violation: %w", err)
	}
	return result.LastInsertId()
}

// ListViolations returns violation logs, newest first, optionally
// filtered by extension.
func ListViolations(db *sql.DB, extensionID string, limit int) ([]ViolationLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, extension_id, user_ip, user_agent, violation_type,
		violation_details, conflicts_detected, action_taken, resolved, created_at
		FROM violation_logs`
	args := []interface{}{}
	if extensionID != "" {
		query += ` WHERE extension_id = ?`
		args = append(args, extensionID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query violation logs: %w", err)
	}
	defer rows.Close()

	logs := []ViolationLogEntry{}
	for rows.Next() {
		var v ViolationLogEntry
		var userIP, userAgent, details, actionTaken sql.NullString
		var resolved int
		var createdAt string
		if err := rows.Scan(&v.ID, &v.ExtensionID, &userIP, &userAgent, &v.ViolationType,
			&details, &v.ConflictsDetected, &actionTaken, &resolved, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan violation log: %w", err)
		}
		v.UserIP = userIP.String
		v.UserAgent = userAgent.String
		v.ActionTaken = actionTaken.String
		v.Resolved = resolved == 1
		if details.Valid && details.String != "" {
			v.ViolationDetails = json.RawMessage(details.String)
		}
		v.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		logs = append(logs, v)
	}
	return logs, rows.Err()
}
