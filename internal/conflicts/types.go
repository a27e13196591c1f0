package conflicts

import (
	"encoding/json"
	"time"
)

// Blacklist severity levels, highest first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Actions a blacklist entry asks the extension to take.
const (
	ActionBlock   = "block"
	ActionDisable = "disable"
	ActionWarn    = "warn"
)

// BlacklistEntry is a known-conflicting browser extension.
type BlacklistEntry struct {
	ID               int64     `json:"id"`
	ExtensionID      string    `json:"extension_id"`
	Name             string    `json:"extension_name"`
	Category         string    `json:"category"`
	DetectionPattern string    `json:"detection_pattern,omitempty"`
	Severity         string    `json:"severity"`
	ActionRequired   string    `json:"action_required"`
	IsActive         bool      `json:"is_active"`
	AddedBy          string    `json:"added_by"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BlacklistInput carries a blacklist upsert from the admin API.
type BlacklistInput struct {
	ExtensionID      string `json:"extension_id"`
	Name             string `json:"extension_name"`
	Category         string `json:"category"`
	DetectionPattern string `json:"detection_pattern"`
	Severity         string `json:"severity"`
	ActionRequired   string `json:"action_required"`
	Notes            string `json:"notes"`
}

// ConflictRecord is one detected conflict between a managed instance
// and another installed extension.
type ConflictRecord struct {
	ID                int64      `json:"id"`
	ExtensionID       string     `json:"extension_id"`
	ConflictID        string     `json:"conflict_extension_id"`
	ConflictName      string     `json:"conflict_extension_name"`
	DetectionMethod   string     `json:"detection_method"`
	ViolationReported bool       `json:"violation_reported"`
	ResolvedAt        *time.Time `json:"resolved_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ReportedConflict is the wire form an extension sends when it detects
// a conflicting extension on the client.
type ReportedConflict struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DetectedAs string `json:"detectedAs"`
}

// ViolationLogEntry records a policy violation observed on a client.
type ViolationLogEntry struct {
	ID                int64           `json:"id"`
	ExtensionID       string          `json:"extension_id"`
	UserIP            string          `json:"user_ip,omitempty"`
	UserAgent         string          `json:"user_agent,omitempty"`
	ViolationType     string          `json:"violation_type"`
	ViolationDetails  json.RawMessage `json:"violation_details,omitempty"`
	ConflictsDetected int             `json:"conflicts_detected"`
	ActionTaken       string          `json:"action_taken,omitempty"`
	Resolved          bool            `json:"resolved"`
	CreatedAt         time.Time       `json:"created_at"`
}

// TopConflicting is one row of the statistics leaderboard.
type TopConflicting struct {
	Name  string `json:"conflict_extension_name"`
	Count int    `json:"conflict_count"`
}

// Statistics summarizes conflict activity over a time window.
type Statistics struct {
	Period              string           `json:"period"`
	TotalConflicts      int              `json:"total_conflicts"`
	AffectedExtensions  int              `json:"affected_extensions"`
	TotalViolations     int              `json:"total_violations"`
	ResolvedConflicts   int              `json:"resolved_conflicts"`
	UnresolvedConflicts int              `json:"unresolved_conflicts"`
	TopConflicting      []TopConflicting `json:"top_conflicting_extensions"`
}
