package rules

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// ─── URL rules ────────────────────────────────────────────────────────────────

// ListURLRules returns URL rules in ascending id order, the order
// first-match-wins consumers expect.
func ListURLRules(db *sql.DB, activeOnly bool) ([]URLRule, error) {
	query := "SELECT id, pattern, action, COALESCE(target, ''), COALESCE(description, ''), is_active, created_at, updated_at FROM url_rules"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY id ASC"

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list url rules: %w", err)
	}
	defer rows.Close()

	out := []URLRule{}
	for rows.Next() {
		var r URLRule
		var active int
		var createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.Pattern, &r.Action, &r.Target, &r.Description, &active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.IsActive = active == 1
		r.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		r.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddURLRule validates and inserts a URL rule, returning the new id.
func AddURLRule(db *sql.DB, in URLRuleInput) (int64, error) {
	if in.Pattern == nil || *in.Pattern == "" || in.Action == nil || *in.Action == "" {
		return 0, invalid("Pattern and action are required")
	}
	if !validURLAction(*in.Action) {
		return 0, invalid("Invalid action. Must be redirect or block")
	}
	if !ValidURLPattern(*in.Pattern) {
		return 0, invalid("Pattern must be a valid regular expression or wildcard pattern")
	}
	if *in.Action == URLActionRedirect && (in.Target == nil || *in.Target == "") {
		return 0, invalid("Target URL is required for redirect action")
	}

	result, err := db.Exec(`
		INSERT INTO url_rules (pattern, action, target, description, is_active)
		VALUES (?, ?, ?, ?, ?)
	`, *in.Pattern, *in.Action, strOrNil(in.Target), strOrNil(in.Description), activeFlag(in.IsActive))
	if err != nil {
		return 0, fmt.Errorf("insert url rule: %w", err)
	}
	return result.LastInsertId()
}

// UpdateURLRule applies a sparse merge: only supplied fields change.
func UpdateURLRule(db *sql.DB, id int64, in URLRuleInput) (bool, error) {
	if in.Pattern != nil && !ValidURLPattern(*in.Pattern) {
		return false, invalid("Pattern must be a valid regular expression or wildcard pattern")
	}
	if in.Action != nil && !validURLAction(*in.Action) {
		return false, invalid("Invalid action. Must be redirect or block")
	}

	u := newUpdate()
	u.set("pattern", in.Pattern)
	u.set("action", in.Action)
	u.set("target", in.Target)
	u.set("description", in.Description)
	u.setBool("is_active", in.IsActive)
	return u.apply(db, "url_rules", id)
}

// DeleteURLRule removes a URL rule by id.
func DeleteURLRule(db *sql.DB, id int64) (bool, error) {
	return deleteByID(db, "url_rules", id)
}

// ─── CSS rules ────────────────────────────────────────────────────────────────

// ListCSSRules returns CSS rules in ascending id order with the stored
// properties JSON expanded into a structured map.
func ListCSSRules(db *sql.DB, activeOnly bool) ([]CSSRule, error) {
	query := "SELECT id, url_pattern, selector, action, COALESCE(css_properties, ''), COALESCE(description, ''), is_active, created_at, updated_at FROM css_rules"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY id ASC"

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list css rules: %w", err)
	}
	defer rows.Close()

	out := []CSSRule{}
	for rows.Next() {
		var r CSSRule
		var active int
		var props, createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.URLPattern, &r.Selector, &r.Action, &props, &r.Description, &active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.IsActive = active == 1
		if props != "" {
			json.Unmarshal([]byte(props), &r.CSSProperties)
		}
		r.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		r.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddCSSRule validates and inserts a CSS rule, returning the new id.
func AddCSSRule(db *sql.DB, in CSSRuleInput) (int64, error) {
	if in.URLPattern == nil || *in.URLPattern == "" || in.Selector == nil || *in.Selector == "" || in.Action == nil || *in.Action == "" {
		return 0, invalid("URL pattern, selector, and action are required")
	}
	if !validCSSAction(*in.Action) {
		return 0, invalid("Invalid action. Must be hide, modify, or remove")
	}
	if !ValidCSSSelector(*in.Selector) {
		return 0, invalid("Selector is not allowed")
	}
	if *in.Action == CSSActionModify && (in.CSSProperties == nil || len(*in.CSSProperties) == 0) {
		return 0, invalid("CSS properties are required for modify action")
	}

	result, err := db.Exec(`
		INSERT INTO css_rules (url_pattern, selector, action, css_properties, description, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`, *in.URLPattern, *in.Selector, *in.Action, propsOrNil(in.CSSProperties), strOrNil(in.Description), activeFlag(in.IsActive))
	if err != nil {
		return 0, fmt.Errorf("insert css rule: %w", err)
	}
	return result.LastInsertId()
}

// UpdateCSSRule applies a sparse merge: only supplied fields change.
func UpdateCSSRule(db *sql.DB, id int64, in CSSRuleInput) (bool, error) {
	if in.Selector != nil && !ValidCSSSelector(*in.Selector) {
		return false, invalid("Selector is not allowed")
	}
	if in.Action != nil && !validCSSAction(*in.Action) {
		return false, invalid("Invalid action. Must be hide, modify, or remove")
	}

	u := newUpdate()
	u.set("url_pattern", in.URLPattern)
	u.set("selector", in.Selector)
	u.set("action", in.Action)
	if in.CSSProperties != nil {
		encoded, _ := json.Marshal(*in.CSSProperties)
		s := string(encoded)
		u.set("css_properties", &s)
	}
	u.set("description", in.Description)
	u.setBool("is_active", in.IsActive)
	return u.apply(db, "css_rules", id)
}

// DeleteCSSRule removes a CSS rule by id.
func DeleteCSSRule(db *sql.DB, id int64) (bool, error) {
	return deleteByID(db, "css_rules", id)
}

// ─── Cookie rules ─────────────────────────────────────────────────────────────

// ListCookieRules returns cookie rules in ascending id order.
func ListCookieRules(db *sql.DB, activeOnly bool) ([]CookieRule, error) {
	query := "SELECT id, domain, name, action, COALESCE(description, ''), is_active, created_at, updated_at FROM cookie_rules"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY id ASC"

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list cookie rules: %w", err)
	}
	defer rows.Close()

	out := []CookieRule{}
	for rows.Next() {
		var r CookieRule
		var active int
		var createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.Domain, &r.Name, &r.Action, &r.Description, &active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.IsActive = active == 1
		r.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		r.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddCookieRule validates and inserts a cookie rule, returning the new id.
func AddCookieRule(db *sql.DB, in CookieRuleInput) (int64, error) {
	if in.Domain == nil || *in.Domain == "" || in.Name == nil || *in.Name == "" || in.Action == nil || *in.Action == "" {
		return 0, invalid("Domain, name, and action are required")
	}
	if !validCookieAction(*in.Action) {
		return 0, invalid("Invalid action. Must be preserve or delete")
	}
	if !ValidDomain(*in.Domain) {
		return 0, invalid("Domain is not a valid hostname")
	}

	result, err := db.Exec(`
		INSERT INTO cookie_rules (domain, name, action, description, is_active)
		VALUES (?, ?, ?, ?, ?)
	`, *in.Domain, *in.Name, *in.Action, strOrNil(in.Description), activeFlag(in.IsActive))
	if err != nil {
		return 0, fmt.Errorf("insert cookie rule: %w", err)
	}
	return result.LastInsertId()
}

// UpdateCookieRule applies a sparse merge: only supplied fields change.
func UpdateCookieRule(db *sql.DB, id int64, in CookieRuleInput) (bool, error) {
	if in.Domain != nil && !ValidDomain(*in.Domain) {
		return false, invalid("Domain is not a valid hostname")
	}
	if in.Action != nil && !validCookieAction(*in.Action) {
		return false, invalid("Invalid action. Must be preserve or delete")
	}

	u := newUpdate()
	u.set("domain", in.Domain)
	u.set("name", in.Name)
	u.set("action", in.Action)
	u.set("description", in.Description)
	u.setBool("is_active", in.IsActive)
	return u.apply(db, "cookie_rules", id)
}

// DeleteCookieRule removes a cookie rule by id.
func DeleteCookieRule(db *sql.DB, id int64) (bool, error) {
	return deleteByID(db, "cookie_rules", id)
}

// ─── Combined listing ─────────────────────────────────────────────────────────

// AllRules returns the combined rule set served to extensions.
func AllRules(db *sql.DB, activeOnly bool) (*RuleSet, error) {
	urlRules, err := ListURLRules(db, activeOnly)
	if err != nil {
		return nil, err
	}
	cssRules, err := ListCSSRules(db, activeOnly)
	if err != nil {
		return nil, err
	}
	cookieRules, err := ListCookieRules(db, activeOnly)
	if err != nil {
		return nil, err
	}
	return &RuleSet{URLRules: urlRules, CSSRules: cssRules, CookieRules: cookieRules}, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// update collects SET clauses for a sparse UPDATE statement.
type update struct {
	clauses []string
	args    []interface{}
}

func newUpdate() *update { return &update{} }

func (u *update) set(column string, value *string) {
	if value != nil {
		u.clauses = append(u.clauses, column+" = ?")
		u.args = append(u.args, *value)
	}
}

func (u *update) setBool(column string, value *bool) {
	if value != nil {
		flag := 0
		if *value {
			flag = 1
		}
		u.clauses = append(u.clauses, column+" = ?")
		u.args = append(u.args, flag)
	}
}

func (u *update) apply(db *sql.DB, table string, id int64) (bool, error) {
	if len(u.clauses) == 0 {
		return false, invalid("No fields to update")
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		table, strings.Join(u.clauses, ", "),
	)
	u.args = append(u.args, id)

	result, err := db.Exec(query, u.args...)
	if err != nil {
		return false, fmt.Errorf("update %s %d: %w", table, id, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func deleteByID(db *sql.DB, table string, id int64) (bool, error) {
	result, err := db.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", table, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func strOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func propsOrNil(props *map[string]string) interface{} {
	if props == nil {
		return nil
	}
	encoded, _ := json.Marshal(*props)
	return string(encoded)
}

func activeFlag(b *bool) int {
	if b == nil || *b {
		return 1
	}
	return 0
}
