package policies

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// Get retrieves a policy by name. Returns nil when the name is unknown.
func Get(db *sql.DB, name string) (*Policy, error) {
	var p Policy
	var value string
	var active int
	var updatedAt string
	err := db.QueryRow(`
		SELECT id, policy_name, policy_value, is_active, updated_at
		FROM extension_policies WHERE policy_name = ?
	`, name).Scan(&p.ID, &p.PolicyName, &value, &active, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get policy %s: %w", name, err)
	}

	p.Value = json.RawMessage(value)
	p.IsActive = active == 1
	p.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &p, nil
}

// Set stores a policy value, replacing the whole document (no partial
// merge) and marking it active.
func Set(db *sql.DB, name string, value json.RawMessage) error {
	if name == "" {
		return fmt.Errorf("policy name is required")
	}
	if len(value) == 0 || !json.Valid(value) {
		return fmt.Errorf("policy value must be valid JSON")
	}

	_, err := db.Exec(`
		INSERT INTO extension_policies (policy_name, policy_value, is_active)
		VALUES (?, ?, 1)
		ON CONFLICT(policy_name) DO UPDATE SET
			policy_value = excluded.policy_value,
			is_active = 1,
			updated_at = CURRENT_TIMESTAMP
	`, name, string(value))
	if err != nil {
		return fmt.Errorf("set policy %s: %w", name, err)
	}
	return nil
}

// GetKnown returns the recognized policies that currently exist, keyed
// by name.
func GetKnown(db *sql.DB) (map[string]*Policy, error) {
	out := make(map[string]*Policy)
	for _, name := range KnownPolicyNames {
		p, err := Get(db, name)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out[name] = p
		}
	}
	return out, nil
}
