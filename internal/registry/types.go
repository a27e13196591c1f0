package registry

import (
	"encoding/json"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// ManagedExtension is a browser extension instance tracked by the
// control plane. IsEnabled mirrors browser-level enablement and is
// independent of the lightweight extensions.is_active flag that gates
// API tokens. BackendControlled=false means the row is tracked but the
// backend must not alter its enablement.
type ManagedExtension struct {
	ID                int64      `json:"id"`
	ExtensionID       string     `json:"extension_id"`
	Name              string     `json:"extension_name"`
	Version           string     `json:"extension_version,omitempty"`
	Description       string     `json:"description,omitempty"`
	InstallType       string     `json:"install_type"`
	IsEnabled         bool       `json:"is_enabled"`
	BackendControlled bool       `json:"backend_controlled"`
	DiscoveryMethod   string     `json:"discovery_method"`
	DiscoveredAt      time.Time  `json:"discovered_at"`
	LastSync          *time.Time `json:"last_sync,omitempty"`
}

// RegisterInput carries the fields an extension reports about itself or
// a peer during registration.
type RegisterInput struct {
	ExtensionID     string `json:"extension_id"`
	Name            string `json:"extension_name"`
	Version         string `json:"extension_version"`
	Description     string `json:"description"`
	InstallType     string `json:"install_type"`
	IsEnabled       *bool  `json:"is_enabled"`
	DiscoveryMethod string `json:"discovery_method"`
}

// BatchResult is the partial-success envelope for batch registration:
// one bad row must not fail the rest.
type BatchResult struct {
	SuccessCount int      `json:"success_count"`
	TotalCount   int      `json:"total_count"`
	Errors       []string `json:"errors"`
}

// LogEntry is one append-only management audit record.
type LogEntry struct {
	ID          int64           `json:"id"`
	ExtensionID string          `json:"extension_id"`
	Action      string          `json:"action"`
	OldState    *bool           `json:"old_state"`
	NewState    *bool           `json:"new_state"`
	TriggeredBy string          `json:"triggered_by"`
	Source      string          `json:"source"`
	Details     json.RawMessage `json:"details,omitempty"`
	UserIP      string          `json:"user_ip,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TopExtension is one row of the most-audited ranking.
type TopExtension struct {
	ExtensionID string `json:"extension_id"`
	Name        string `json:"extension_name"`
	ActionCount int    `json:"action_count"`
}

// Stats summarizes the managed fleet.
type Stats struct {
	TotalManaged     int            `json:"total_managed"`
	TotalEnabled     int            `json:"total_enabled"`
	TotalDisabled    int            `json:"total_disabled"`
	RecentActions24h int            `json:"recent_actions_24h"`
	TopManaged       []TopExtension `json:"top_managed_extensions"`
}
