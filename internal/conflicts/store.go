package conflicts

import (
	"database/sql"
	"fmt"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// ValidationError marks input the caller can fix; handlers map it to 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// AddConflict records one detected conflict and returns its row ID.
func AddConflict(db *sql.DB, extensionID string, c ReportedConflict) (int64, error) {
	if extensionID == "" || c.ID == "" {
		return 0, invalid("Extension ID and conflict extension ID are required")
	}
	method := c.DetectedAs
	if method == "" {
		method = "automatic"
	}

	result, err := db.Exec(`
		INSERT INTO extension_conflicts
			(extension_id, conflict_extension_id, conflict_extension_name, detection_method, violation_reported)
		VALUES (?, ?, ?, ?, 1)`,
		extensionID, c.ID, c.Name, method)
	if err != nil {
		return 0, fmt.Errorf("failed to add conflict: %w", err)
	}
	return result.LastInsertId()
}

// ListConflicts returns conflicts for an extension, newest first.
func ListConflicts(db *sql.DB, extensionID string, unresolvedOnly bool) ([]ConflictRecord, error) {
	query := `SELECT id, extension_id, conflict_extension_id, conflict_extension_name,
		detection_method, violation_reported, resolved_at, created_at
		FROM extension_conflicts WHERE extension_id = ?`
	if unresolvedOnly {
		query += ` AND resolved_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.Query(query, extensionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer rows.Close()

	records := []ConflictRecord{}
	for rows.Next() {
		var rec ConflictRecord
		var reported int
		var resolvedAt sql.NullString
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.ExtensionID, &rec.ConflictID, &rec.ConflictName,
			&rec.DetectionMethod, &reported, &resolvedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		rec.ViolationReported = reported == 1
		if resolvedAt.Valid {
			t, _ := time.Parse(timeFormat, resolvedAt.String)
			rec.ResolvedAt = &t
		}
		rec.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// HasActive reports whether the extension has unresolved conflicts.
func HasActive(db *sql.DB, extensionID string) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM extension_conflicts
		WHERE extension_id = ? AND resolved_at IS NULL`, extensionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count active conflicts: %w", err)
	}
	return count > 0, nil
}

// Resolve marks conflicts resolved. An empty id list resolves every
// unresolved conflict for the extension. Already-resolved rows keep
// their original resolved_at, so resolution is monotonic and
// re-resolving is a no-op.
func Resolve(db *sql.DB, extensionID string, conflictIDs []int64) (int64, error) {
	if extensionID == "" {
		return 0, invalid("Extension ID is required")
	}
	now := time.Now().UTC().Format(timeFormat)

	if len(conflictIDs) == 0 {
		result, err := db.Exec(`
			UPDATE extension_conflicts SET resolved_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE extension_id = ? AND resolved_at IS NULL`, now, extensionID)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve conflicts: %w", err)
		}
		return result.RowsAffected()
	}

	query := `UPDATE extension_conflicts SET resolved_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE extension_id = ? AND resolved_at IS NULL AND id IN (`
	args := []interface{}{now, extensionID}
	for i, id := range conflictIDs {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, id)
	}
	query += ")"

	result, err := db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve conflicts: %w", err)
	}
	return result.RowsAffected()
}

var periodModifiers = map[string]string{
	"day":   "-1 day",
	"week":  "-7 days",
	"month": "-1 month",
	"year":  "-1 year",
}

// ComputeStatistics summarizes conflict activity since now minus the
// period. Unknown periods fall back to a week.
func ComputeStatistics(db *sql.DB, period string) (*Statistics, error) {
	modifier, ok := periodModifiers[period]
	if !ok {
		period = "week"
		modifier = periodModifiers["week"]
	}

	stats := &Statistics{Period: period, TopConflicting: []TopConflicting{}}

	err := db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT extension_id),
		       COALESCE(SUM(CASE WHEN resolved_at IS NOT NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN resolved_at IS NULL THEN 1 ELSE 0 END), 0)
		FROM extension_conflicts
		WHERE created_at >= datetime('now', ?)`, modifier).
		Scan(&stats.TotalConflicts, &stats.AffectedExtensions,
			&stats.ResolvedConflicts, &stats.UnresolvedConflicts)
	if err != nil {
		return nil, fmt.Errorf("failed to compute conflict totals: %w", err)
	}

	err = db.QueryRow(`
		SELECT COUNT(*) FROM violation_logs
		WHERE created_at >= datetime('now', ?)`, modifier).Scan(&stats.TotalViolations)
	if err != nil {
		return nil, fmt.Errorf("failed to count violations: %w", err)
	}

	rows, err := db.Query(`
		SELECT conflict_extension_name, COUNT(*) as conflict_count
		FROM extension_conflicts
		WHERE created_at >= datetime('now', ?)
		GROUP BY conflict_extension_id, conflict_extension_name
		ORDER BY conflict_count DESC
		LIMIT 10`, modifier)
	if err != nil {
		return nil, fmt.Errorf("failed to rank conflicting extensions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var top TopConflicting
		if err := rows.Scan(&top.Name, &top.Count); err != nil {
			return nil, err
		}
		stats.TopConflicting = append(stats.TopConflicting, top)
	}
	return stats, rows.Err()
}
