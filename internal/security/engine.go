package security

import (
	"strings"
	"sync"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/events"
	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// PermissionChecker is the slice of the rbac service the engine needs.
type PermissionChecker interface {
	PrincipalHasPermission(p *models.Principal, resource, action string) bool
}

// RateStatus is the slice of the rate limiter the engine needs. The
// middleware consumes requests; the engine only inspects bucket state.
type RateStatus interface {
	Remaining(key, category string) int
}

// AuditSink receives violation audit events, fire-and-forget.
type AuditSink interface {
	Log(event *models.AuditEvent)
}

// Context describes one sensitive action under evaluation. Protected marks
// actions that require an authenticated principal; unprotected evaluations
// (public endpoints) never trip the authentication rule.
type Context struct {
	Principal *models.Principal
	Action    string
	Resource  string
	Protected bool
	ClientIP  string
	UserAgent string
	Payload   map[string]any
	RiskScore int
}

// key returns the rate-limit / attribution key for the context: principal id
// when authenticated, client IP otherwise.
func (c Context) key() string {
	if c.Principal != nil && c.Principal.ID != "" {
		return c.Principal.ID
	}
	if c.ClientIP != "" {
		return c.ClientIP
	}
	return "anonymous"
}

// EscalationFunc is the synchronous hook invoked for critical violations.
type EscalationFunc func(v models.SecurityViolation, c Context)

// FileUploadCheck is the extension point for the file_upload rule kind. It
// returns true when the upload in the context violates the rule.
type FileUploadCheck func(c Context) bool

// sensitiveFieldPatterns is the fixed list the data_access rule scans
// payload field names against, case-insensitively.
var sensitiveFieldPatterns = []string{
	"password", "passwd", "ssn", "social_security", "credit_card",
	"card_number", "cvv", "bank_account", "routing_number", "api_key",
	"apikey", "secret", "access_token", "private_key",
}

// Engine evaluates enabled security policies against request contexts and
// owns the violation ledger.
type Engine struct {
	mu       sync.RWMutex
	policies []*models.SecurityPolicy // registration order

	rbac       PermissionChecker
	rates      RateStatus
	auditor    AuditSink
	bus        *events.Bus
	ledger     *Ledger
	escalate   EscalationFunc
	fileUpload FileUploadCheck

	sweeper   *cron.Cron
	retention time.Duration
}

// NewEngine creates an Engine with an empty policy set.
func NewEngine(rbac PermissionChecker, rates RateStatus, auditor AuditSink, bus *events.Bus, ledger *Ledger) *Engine {
	if ledger == nil {
		ledger = NewLedger(DefaultMaxViolations)
	}
	return &Engine{
		rbac:      rbac,
		rates:     rates,
		auditor:   auditor,
		bus:       bus,
		ledger:    ledger,
		retention: DefaultRetention,
	}
}

// SetEscalation installs the critical-severity escalation hook.
func (e *Engine) SetEscalation(fn EscalationFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.escalate = fn
}

// SetFileUploadCheck installs the file_upload rule hook.
func (e *Engine) SetFileUploadCheck(fn FileUploadCheck) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fileUpload = fn
}

// Ledger exposes the violation ledger.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// --- Policy administration ---

// AddPolicy registers a policy. Policies evaluate in registration order.
func (e *Engine) AddPolicy(p models.SecurityPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := p
	cp.Rules = append([]models.SecurityRule(nil), p.Rules...)
	e.policies = append(e.policies, &cp)
}

// RemovePolicy deletes a policy by name. Returns false if unknown.
func (e *Engine) RemovePolicy(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, p := range e.policies {
		if p.Name == name {
			e.policies = append(e.policies[:i], e.policies[i+1:]...)
			return true
		}
	}
	return false
}

// SetPolicyEnabled toggles a policy. Idempotent; returns false if unknown.
func (e *Engine) SetPolicyEnabled(name string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.policies {
		if p.Name == name {
			p.Enabled = enabled
			return true
		}
	}
	return false
}

// Policies returns copies of all registered policies in order.
func (e *Engine) Policies() []models.SecurityPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.SecurityPolicy, 0, len(e.policies))
	for _, p := range e.policies {
		cp := *p
		cp.Rules = append([]models.SecurityRule(nil), p.Rules...)
		out = append(out, cp)
	}
	return out
}

// --- Enforcement ---

// Enforce evaluates all enabled policies against the context. Returns true
// when the action may proceed. Low and medium violations are recorded and
// audited but never block; high and critical do.
func (e *Engine) Enforce(c Context) bool {
	// Snapshot the enabled policies as values while holding the read lock:
	// SetPolicyEnabled writes through the shared pointers, so Enabled must
	// not be read after release. Rules slices are immutable once registered.
	e.mu.RLock()
	policies := make([]models.SecurityPolicy, 0, len(e.policies))
	for _, p := range e.policies {
		if p.Enabled {
			policies = append(policies, *p)
		}
	}
	escalate := e.escalate
	e.mu.RUnlock()

	allowed := true
	for i := range policies {
		p := &policies[i]
		rule, matched := e.firstMatch(p, c)
		if !matched {
			continue
		}
		v := e.record(p, rule, c, escalate)
		if v.Severity.Blocking() {
			allowed = false
		}
	}
	return allowed
}

// firstMatch finds the first rule in the policy that matches the context.
// At most one violation per policy per evaluation.
func (e *Engine) firstMatch(p *models.SecurityPolicy, c Context) (models.SecurityRule, bool) {
	for _, r := range p.Rules {
		if e.ruleMatches(r, c) {
			return r, true
		}
	}
	return models.SecurityRule{}, false
}

func (e *Engine) ruleMatches(r models.SecurityRule, c Context) bool {
	switch r.Type {
	case models.RuleRateLimit:
		category := r.Category
		if category == "" {
			category = "api"
		}
		return e.rates != nil && e.rates.Remaining(c.key(), category) == 0
	case models.RulePermission:
		if c.Principal == nil {
			return false // authentication rules cover the anonymous case
		}
		resource, action := r.Resource, r.Capability
		if resource == "" {
			resource = c.Resource
		}
		if action == "" {
			action = c.Action
		}
		if resource == "" || strings.HasPrefix(resource, "/") {
			// Transport-level contexts carry a raw request path, which is
			// not a permission resource. Nothing to check.
			return false
		}
		return !e.rbac.PrincipalHasPermission(c.Principal, resource, action)
	case models.RuleDataAccess:
		return containsSensitiveField(c.Payload)
	case models.RuleAuthentication:
		return c.Protected && (c.Principal == nil || c.Principal.ID == "") && c.Action != "login"
	case models.RuleFileUpload:
		e.mu.RLock()
		fn := e.fileUpload
		e.mu.RUnlock()
		return fn != nil && fn(c)
	}
	return false
}

// containsSensitiveField walks the payload looking for field names matching
// the sensitive patterns, case-insensitively, through nested maps.
func containsSensitiveField(payload map[string]any) bool {
	for k, v := range payload {
		lower := strings.ToLower(k)
		for _, pat := range sensitiveFieldPatterns {
			if strings.Contains(lower, pat) {
				return true
			}
		}
		if nested, ok := v.(map[string]any); ok {
			if containsSensitiveField(nested) {
				return true
			}
		}
	}
	return false
}

// record appends the violation to the ledger, audits it, publishes it on
// the bus, and escalates critical severity exactly once.
func (e *Engine) record(p *models.SecurityPolicy, r models.SecurityRule, c Context, escalate EscalationFunc) models.SecurityViolation {
	v := models.SecurityViolation{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      p.Name + "_" + string(r.Type),
		Severity:  p.Severity,
		ClientIP:  c.ClientIP,
		UserAgent: c.UserAgent,
		Details: map[string]any{
			"resource":    c.Resource,
			"action":      c.Action,
			"rule_action": string(r.Action),
			"risk_score":  c.RiskScore,
		},
	}
	if c.Principal != nil {
		v.PrincipalID = c.Principal.ID
	}

	e.ledger.Append(v)

	log.Warn().Str("type", v.Type).Str("severity", string(v.Severity)).
		Str("principal", v.PrincipalID).Str("resource", c.Resource).
		Str("action", c.Action).Msg("security violation")

	if e.auditor != nil {
		e.auditor.Log(&models.AuditEvent{
			EntityType:  "security_violation",
			EntityID:    v.ID,
			Action:      v.Type,
			PerformedBy: v.PrincipalID,
			Severity:    v.Severity,
			ClientIP:    v.ClientIP,
			UserAgent:   v.UserAgent,
			Metadata:    v.Details,
		})
	}
	if e.bus != nil {
		e.bus.Publish(events.SecurityBreachDetected{
			Violation: v,
			Resource:  c.Resource,
			Action:    c.Action,
		})
	}
	if v.Severity == models.SeverityCritical {
		if escalate != nil {
			escalate(v, c)
		}
		if e.bus != nil {
			e.bus.Publish(events.CriticalViolationEscalated{Violation: v})
		}
	}
	return v
}

// --- Violation lifecycle ---

// ResolveViolation marks a ledger entry resolved and announces it.
func (e *Engine) ResolveViolation(id, resolvedBy string) bool {
	if !e.ledger.Resolve(id, resolvedBy) {
		return false
	}
	if e.auditor != nil {
		e.auditor.Log(&models.AuditEvent{
			EntityType:  "security_violation",
			EntityID:    id,
			Action:      "resolve",
			PerformedBy: resolvedBy,
		})
	}
	if e.bus != nil {
		e.bus.Publish(events.ViolationResolved{ID: id, ResolvedBy: resolvedBy})
	}
	return true
}

// Statistics reports the current ledger view.
func (e *Engine) Statistics() models.SecurityStatistics {
	return e.ledger.Statistics(5)
}

// StartSweep schedules the retention sweep on the given interval. The sweep
// runs independently of request traffic.
func (e *Engine) StartSweep(interval time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sweeper != nil {
		return nil
	}
	c := cron.New()
	spec := "@every " + interval.String()
	if _, err := c.AddFunc(spec, func() {
		if purged := e.ledger.Sweep(e.retention); purged > 0 {
			log.Info().Int("purged", purged).Msg("violation ledger sweep")
		}
	}); err != nil {
		return err
	}
	c.Start()
	e.sweeper = c
	return nil
}

// StopSweep halts the scheduled sweep.
func (e *Engine) StopSweep() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sweeper != nil {
		e.sweeper.Stop()
		e.sweeper = nil
	}
}
