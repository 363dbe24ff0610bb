package models

import "time"

// Severity levels for policies and the violations they produce.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies the
// triggering action. Low and medium are observe-only by design.
func (s Severity) Blocking() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Valid reports whether s is one of the known severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// RuleType is the closed set of security rule kinds.
type RuleType string

const (
	RuleRateLimit      RuleType = "rate_limit"
	RulePermission     RuleType = "permission"
	RuleDataAccess     RuleType = "data_access"
	RuleAuthentication RuleType = "authentication"
	RuleFileUpload     RuleType = "file_upload"
)

// RuleAction is what a matched rule asks the engine to do.
type RuleAction string

const (
	ActionAllow RuleAction = "allow"
	ActionDeny  RuleAction = "deny"
	ActionAudit RuleAction = "audit"
	ActionAlert RuleAction = "alert"
)

// SecurityRule is one typed condition inside a policy. Condition fields are
// interpreted per rule type; unused fields stay zero.
type SecurityRule struct {
	Type   RuleType   `json:"type"`
	Action RuleAction `json:"action"`

	// rate_limit
	Category  string        `json:"category,omitempty"`
	Threshold int           `json:"threshold,omitempty"`
	Window    time.Duration `json:"window,omitempty"`

	// permission
	Resource   string `json:"resource,omitempty"`
	Capability string `json:"capability,omitempty"`
}

// SecurityPolicy is a named, toggleable bundle of rules sharing one severity.
type SecurityPolicy struct {
	Name     string         `json:"name"`
	Severity Severity       `json:"severity"`
	Enabled  bool           `json:"enabled"`
	Rules    []SecurityRule `json:"rules"`
}

// SecurityViolation records one rule match. Immutable after creation except
// for the resolution fields.
type SecurityViolation struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	PrincipalID string    `json:"principal_id,omitempty"`
	// Type is policy name + rule type, e.g. "api_rate_limiting_rate_limit".
	Type       string         `json:"type"`
	Severity   Severity       `json:"severity"`
	Details    map[string]any `json:"details,omitempty"`
	ClientIP   string         `json:"client_ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
}

// SecurityStatistics is the point-in-time view computed from the ledger.
type SecurityStatistics struct {
	Total         int              `json:"total"`
	Resolved      int              `json:"resolved"`
	Unresolved    int              `json:"unresolved"`
	Last24hBySev  map[Severity]int `json:"last_24h_by_severity"`
	Last7dBySev   map[Severity]int `json:"last_7d_by_severity"`
	TopTypes      []TypeCount      `json:"top_types"`
	TopPrincipals []PrincipalCount `json:"top_principals"`
}

// TypeCount pairs a violation type with how often it occurred.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// PrincipalCount pairs a principal with its violation count.
type PrincipalCount struct {
	PrincipalID string `json:"principal_id"`
	Count       int    `json:"count"`
}
