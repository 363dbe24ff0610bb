package models

import "time"

// AuditEvent records a single system or security event. Events are
// append-only: nothing in the codebase updates or deletes one after it is
// written.
type AuditEvent struct {
	ID          int64          `json:"id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id,omitempty"`
	Action      string         `json:"action"`
	PerformedBy string         `json:"performed_by,omitempty"`
	Severity    Severity       `json:"severity,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	ClientIP    string         `json:"client_ip,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ComplianceSummary aggregates the events inside a compliance report window.
type ComplianceSummary struct {
	TotalEvents  int              `json:"total_events"`
	ByAction     map[string]int   `json:"by_action"`
	ByEntityType map[string]int   `json:"by_entity_type"`
	BySeverity   map[Severity]int `json:"by_severity"`
	UniqueActors int              `json:"unique_actors"`
	From         time.Time        `json:"from"`
	To           time.Time        `json:"to"`
}

// ComplianceReport is the full report payload: summary plus the raw events.
type ComplianceReport struct {
	Summary ComplianceSummary `json:"summary"`
	Events  []*AuditEvent     `json:"events"`
}
