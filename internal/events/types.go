package events

import "time"

// EventType identifies the kind of event being published.
type EventType string

const (
	// Fleet state events
	ExtensionRegistered   EventType = "extension_registered"
	ExtensionStateChanged EventType = "extension_state_changed"
	ExtensionDeleted      EventType = "extension_deleted"

	// Conflict events
	ConflictReported  EventType = "conflict_reported"
	ConflictsResolved EventType = "conflicts_resolved"
	ViolationDetected EventType = "violation_detected"
	BlacklistUpdated  EventType = "blacklist_updated"

	// Policy events
	PolicyUpdated EventType = "policy_updated"
)

// Severity indicates the urgency of an event.
type Severity int

const (
	SeverityInfo     Severity = 0
	SeverityWarning  Severity = 1
	SeverityCritical Severity = 2
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Event is the payload published through the bus.
type Event struct {
	Type        EventType         `json:"type"`
	Severity    Severity          `json:"severity"`
	ExtensionID string            `json:"extension_id,omitempty"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}
