package conflicts

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// defaultBlacklist holds the well-known conflicting extensions shipped
// with a fresh install. Store IDs are Chrome Web Store identifiers.
var defaultBlacklist = []BlacklistInput{
	// Cookie management
	{ExtensionID: "fngmhnnpilhplaeedifhccceomclgfbg", Name: "EditThisCookie", Category: "cookie_manager", Severity: SeverityCritical, ActionRequired: ActionBlock},
	{ExtensionID: "hhojmcideegghqohhfcidlbnkgchpajgn", Name: "Cookie Editor", Category: "cookie_manager", Severity: SeverityCritical, ActionRequired: ActionBlock},
	{ExtensionID: "jiaojkejmjfiomnkdommeodcnl", Name: "Cookie Editor Pro", Category: "cookie_manager", Severity: SeverityCritical, ActionRequired: ActionBlock},
	{ExtensionID: "fhcgjolkccmbidfldomjliifgaodjagh", Name: "Cookie AutoDelete", Category: "cookie_manager", Severity: SeverityHigh, ActionRequired: ActionBlock},
	{ExtensionID: "ldpochfhpslkijphhbnpigkbjgejgnag", Name: "CookieBlock", Category: "cookie_manager", Severity: SeverityHigh, ActionRequired: ActionBlock},

	// Ad blockers
	{ExtensionID: "cjpalhdlnbpafiamejdnhcphjbkeiagm", Name: "uBlock Origin", Category: "ad_blocker", Severity: SeverityHigh, ActionRequired: ActionBlock},
	{ExtensionID: "gighmmpiobklfepjocnamgkkbiglidom", Name: "AdBlock", Category: "ad_blocker", Severity: SeverityHigh, ActionRequired: ActionBlock},
	{ExtensionID: "cfhdojbkjhnklbpkdaibdccddilifddb", Name: "Adblock Plus", Category: "ad_blocker", Severity: SeverityHigh, ActionRequired: ActionBlock},
	{ExtensionID: "aapbdbdomjkkjkaonfhkkikfgjllcleb", Name: "Ghostery", Category: "ad_blocker", Severity: SeverityHigh, ActionRequired: ActionBlock},
	{ExtensionID: "pkehgijcmpdhfbdbbnkijodmdjhbjlgp", Name: "Privacy Badger", Category: "privacy_tool", Severity: SeverityHigh, ActionRequired: ActionBlock},

	// Privacy tools
	{ExtensionID: "jlmpjdjjbgclbocgajdjefcidcncaied", Name: "ClearURLs", Category: "privacy_tool", Severity: SeverityMedium, ActionRequired: ActionBlock},
	{ExtensionID: "bkdgflcldnnnapblkhphbgpggdiikppg", Name: "DuckDuckGo Privacy Essentials", Category: "privacy_tool", Severity: SeverityMedium, ActionRequired: ActionBlock},
	{ExtensionID: "ifdepgnnjaidhhpbiacfknaiklleclhp", Name: "Privacy Cleaner Pro", Category: "privacy_tool", Severity: SeverityHigh, ActionRequired: ActionBlock},

	// Developer tools
	{ExtensionID: "bfbmjmiodbnnpllbbbfblcplfjjepjdn", Name: "Web Developer", Category: "developer_tool", Severity: SeverityMedium, ActionRequired: ActionDisable},
	{ExtensionID: "ljjemllljcmogpfapbkkighbhhppjdbg", Name: "Chrome DevTools", Category: "developer_tool", Severity: SeverityLow, ActionRequired: ActionWarn},

	// Security suites
	{ExtensionID: "kcnhkahbjbkbpngjhlhmellmfoopdijm", Name: "Avira Browser Safety", Category: "security", Severity: SeverityMedium, ActionRequired: ActionBlock},
	{ExtensionID: "jlicmakdihplkagblhpjomaknkeojaoa", Name: "Avast Online Security", Category: "security", Severity: SeverityMedium, ActionRequired: ActionBlock},
	{ExtensionID: "igopjcpkhnlhmbloglbdafciddojeepj", Name: "Kaspersky Security Cloud", Category: "security", Severity: SeverityMedium, ActionRequired: ActionBlock},
}

// EnsureSeeded inserts the default blacklist on first run. A non-empty
// table means an operator may have pruned entries, so it is left alone.
func EnsureSeeded(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM conflicting_extensions_blacklist`).Scan(&count); err != nil {
		return fmt.Errorf("failed to check blacklist: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, entry := range defaultBlacklist {
		if err := UpsertBlacklistEntry(db, entry); err != nil {
			return fmt.Errorf("failed to seed blacklist entry %s: %w", entry.ExtensionID, err)
		}
	}
	log.Printf("✅ Seeded conflicting extensions blacklist with %d entries", len(defaultBlacklist))
	return nil
}

// severityRank orders the TEXT severity column critical > high >
// medium > low instead of lexicographically.
const severityRank = `CASE severity
	WHEN 'critical' THEN 4
	WHEN 'high' THEN 3
	WHEN 'medium' THEN 2
	WHEN 'low' THEN 1
	ELSE 0 END`

// ListBlacklist returns blacklist entries, most severe first.
func ListBlacklist(db *sql.DB, activeOnly bool) ([]BlacklistEntry, error) {
	query := `SELECT id, extension_id, extension_name, category, detection_pattern,
		severity, action_required, is_active, added_by, notes, created_at, updated_at
		FROM conflicting_extensions_blacklist`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY ` + severityRank + ` DESC, category ASC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query blacklist: %w", err)
	}
	defer rows.Close()

	entries := []BlacklistEntry{}
	for rows.Next() {
		var e BlacklistEntry
		var pattern, notes sql.NullString
		var active int
		var createdAt, updatedAt string
		if err := rows.Scan(&e.ID, &e.ExtensionID, &e.Name, &e.Category, &pattern,
			&e.Severity, &e.ActionRequired, &active, &e.AddedBy, &notes,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist entry: %w", err)
		}
		e.DetectionPattern = pattern.String
		e.Notes = notes.String
		e.IsActive = active == 1
		e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		e.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpsertBlacklistEntry inserts or updates an entry keyed by extension ID.
func UpsertBlacklistEntry(db *sql.DB, in BlacklistInput) error {
	if in.ExtensionID == "" || in.Name == "" {
		return invalid("Extension ID and extension name are required")
	}
	if in.Category == "" {
		in.Category = "other"
	}
	if in.Severity == "" {
		in.Severity = SeverityMedium
	}
	if in.ActionRequired == "" {
		in.ActionRequired = ActionBlock
	}

	_, err := db.Exec(`
		INSERT INTO conflicting_extensions_blacklist
			(extension_id, extension_name, category, detection_pattern, severity, action_required, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(extension_id) DO UPDATE SET
			extension_name = excluded.extension_name,
			category = excluded.category,
			detection_pattern = excluded.detection_pattern,
			severity = excluded.severity,
			action_required = excluded.action_required,
			notes = excluded.notes,
			updated_at = CURRENT_TIMESTAMP`,
		in.ExtensionID, in.Name, in.Category, strOrNil(in.DetectionPattern),
		in.Severity, in.ActionRequired, strOrNil(in.Notes))
	if err != nil {
		return fmt.Errorf("failed to upsert blacklist entry: %w", err)
	}
	return nil
}

// RemoveBlacklistEntry deletes an entry by extension ID.
func RemoveBlacklistEntry(db *sql.DB, extensionID string) (bool, error) {
	result, err := db.Exec(`DELETE FROM conflicting_extensions_blacklist WHERE extension_id = ?`, extensionID)
	if err != nil {
		return false, fmt.Errorf("failed to remove blacklist entry: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// ToggleBlacklistEntry activates or deactivates an entry by extension ID.
func ToggleBlacklistEntry(db *sql.DB, extensionID string, active bool) (bool, error) {
	result, err := db.Exec(`
		UPDATE conflicting_extensions_blacklist
		SET is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE extension_id = ?`, boolToInt(active), extensionID)
	if err != nil {
		return false, fmt.Errorf("failed to toggle blacklist entry: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func strOrNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
