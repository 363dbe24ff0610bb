package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/auth"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/ratelimit"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/storage"
	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
)

// --- In-memory storage backend for tests ---

type memStore struct {
	mu         sync.Mutex
	events     []*models.AuditEvent
	principals map[string]*models.Principal
	tokens     map[string]*models.APIToken // keyed by token hash
}

func newMemStore() *memStore {
	s := &memStore{
		principals: map[string]*models.Principal{
			"agent-1": {ID: "agent-1", Roles: []string{models.RoleFieldAgent}, CompanyID: "co-1"},
			"admin-1": {ID: "admin-1", Roles: []string{models.RoleAdministrator}, CompanyID: "co-1"},
			"dir-1":   {ID: "dir-1", Roles: []string{models.RoleOperationsDirector}, CompanyID: "co-1"},
		},
		tokens: map[string]*models.APIToken{},
	}
	for id, plaintext := range map[string]string{
		"agent-1": "fop_agent-token",
		"admin-1": "fop_admin-token",
		"dir-1":   "fop_director-token",
	} {
		s.tokens[auth.HashToken(plaintext)] = &models.APIToken{ID: "tok-" + id, PrincipalID: id}
	}
	return s
}

func (m *memStore) WriteAuditEvent(_ context.Context, e *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = int64(len(m.events) + 1)
	m.events = append(m.events, &cp)
	return nil
}

func (m *memStore) QueryAuditEvents(_ context.Context, f storage.AuditFilter) ([]*models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditEvent
	for _, e := range m.events {
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.PerformedBy != "" && e.PerformedBy != f.PerformedBy {
			continue
		}
		if f.Severity != "" && e.Severity != f.Severity {
			continue
		}
		if f.From != nil && e.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && e.Timestamp.After(*f.To) {
			continue
		}
		out = append(out, e)
	}
	if !f.OldestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) CountAuditEvents(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

func (m *memStore) GetPrincipal(_ context.Context, id string) (*models.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.principals[id]; ok {
		return p, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) GetAPIToken(_ context.Context, hash string) (*models.APIToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[hash]; ok {
		return t, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) Close() {}

// --- helpers ---

func newTestServer(t *testing.T) (*Server, http.Handler, *memStore) {
	t.Helper()
	store := newMemStore()
	srv := NewServer(store, Config{
		ListenAddr:  ":0",
		Environment: "test",
		RateLimits: map[string]ratelimit.Limit{
			ratelimit.CategoryAPI:  {Threshold: 100, Window: time.Minute},
			ratelimit.CategoryAuth: {Threshold: 5, Window: time.Minute},
			ratelimit.CategoryBulk: {Threshold: 10, Window: time.Minute},
		},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx) //nolint:errcheck
	})
	return srv, srv.BuildRouter(), store
}

func doRequest(h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body) //nolint:errcheck
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("User-Agent", "test-client/1.0")
	req.Header.Set("X-Forwarded-For", "192.0.2.10")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return out
}

// --- tests ---

func TestHealthIsPublicAndCarriesSecurityHeaders(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := doRequest(h, "GET", "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" || body["environment"] != "test" {
		t.Errorf("unexpected health body: %v", body)
	}
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestAuthenticatedRoutesRejectMissingToken(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := doRequest(h, "GET", "/api/audit-logs", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	rec = doRequest(h, "GET", "/api/audit-logs", "fop_bogus", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}
}

func TestPermissionCheckFieldAgentAuditRead(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := doRequest(h, "POST", "/api/permissions/check", "fop_agent-token", map[string]any{
		"resource": "audit",
		"action":   "read",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["hasPermission"] != false {
		t.Errorf("hasPermission = %v, want false", body["hasPermission"])
	}
	if body["effectiveRole"] != models.RoleFieldAgent {
		t.Errorf("effectiveRole = %v, want field_agent", body["effectiveRole"])
	}
}

func TestPermissionCheckValidation(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := doRequest(h, "POST", "/api/permissions/check", "fop_agent-token", map[string]any{
		"action": "read",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing resource status = %d, want 400", rec.Code)
	}

	// Checking another user's permissions needs users:read; field_agent lacks it.
	rec = doRequest(h, "POST", "/api/permissions/check", "fop_agent-token", map[string]any{
		"resource": "audit", "action": "read", "userId": "admin-1",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("cross-user check status = %d, want 403", rec.Code)
	}
}

func TestAuditLogsRequireAuditRead(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := doRequest(h, "GET", "/api/audit-logs", "fop_agent-token", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("field_agent status = %d, want 403", rec.Code)
	}
	rec = doRequest(h, "GET", "/api/audit-logs", "fop_admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("administrator status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestAuditLogsValidationFailureIs400(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := doRequest(h, "GET", "/api/audit-logs?limit=5000", "fop_admin-token", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	rec = doRequest(h, "GET", "/api/audit-logs?riskLevel=catastrophic", "fop_admin-token", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	rec = doRequest(h, "GET", "/api/audit-logs?dateFrom=yesterday", "fop_admin-token", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRateLimitScenario(t *testing.T) {
	srv, h, _ := newTestServer(t)

	for i := 1; i <= 100; i++ {
		rec := doRequest(h, "GET", "/api/health", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}
	rec := doRequest(h, "GET", "/api/health", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 101 status = %d, want 429", rec.Code)
	}

	violations := srv.Enforcer().Ledger().List(nil, 0)
	if len(violations) != 1 {
		t.Fatalf("ledger has %d violations, want 1", len(violations))
	}
	if violations[0].Type != "api_rate_limiting_rate_limit" {
		t.Errorf("type = %q, want api_rate_limiting_rate_limit", violations[0].Type)
	}
	if violations[0].Severity != models.SeverityMedium {
		t.Errorf("severity = %q, want medium", violations[0].Severity)
	}
}

func TestRateLimitKeyedByPrincipal(t *testing.T) {
	srv, h, _ := newTestServer(t)

	for i := 1; i <= 100; i++ {
		rec := doRequest(h, "GET", "/api/health", "fop_agent-token", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}
	rec := doRequest(h, "GET", "/api/health", "fop_agent-token", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 101 status = %d, want 429", rec.Code)
	}

	// The principal's bucket is exhausted; anonymous traffic from the same
	// address keeps its own budget.
	rec = doRequest(h, "GET", "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous request status = %d, want 200", rec.Code)
	}

	violations := srv.Enforcer().Ledger().List(nil, 0)
	if len(violations) != 1 {
		t.Fatalf("ledger has %d violations, want 1", len(violations))
	}
	if violations[0].Type != "api_rate_limiting_rate_limit" {
		t.Errorf("type = %q, want api_rate_limiting_rate_limit", violations[0].Type)
	}
	if violations[0].PrincipalID != "agent-1" {
		t.Errorf("principal = %q, want agent-1", violations[0].PrincipalID)
	}
}

func TestAuditAttributesAuthenticatedRequests(t *testing.T) {
	srv, h, store := newTestServer(t)

	doRequest(h, "GET", "/api/security/statistics", "fop_admin-token", nil)
	srv.auditor.Close() // drain the async queue

	store.mu.Lock()
	defer store.mu.Unlock()
	found := false
	for _, e := range store.events {
		if e.EntityType == "http_request" && e.EntityID == "/api/security/statistics" {
			found = true
			if e.PerformedBy != "admin-1" {
				t.Errorf("performed_by = %q, want admin-1", e.PerformedBy)
			}
		}
	}
	if !found {
		t.Errorf("no http_request audit event recorded; got %d events", len(store.events))
	}
}

func TestSensitiveFieldsInBodyAreBlocked(t *testing.T) {
	srv, h, _ := newTestServer(t)

	rec := doRequest(h, "POST", "/api/audit-logs/export", "fop_admin-token", map[string]any{
		"format":   "csv",
		"password": "hunter2",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	violations := srv.Enforcer().Ledger().List(nil, 0)
	if len(violations) != 1 {
		t.Fatalf("ledger has %d violations, want 1", len(violations))
	}
	if violations[0].Type != "sensitive_data_protection_data_access" {
		t.Errorf("type = %q, want sensitive_data_protection_data_access", violations[0].Type)
	}
	if violations[0].Severity != models.SeverityCritical {
		t.Errorf("severity = %q, want critical", violations[0].Severity)
	}
}

func TestComplianceReportTotals(t *testing.T) {
	_, h, store := newTestServer(t)

	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.WriteAuditEvent(context.Background(), &models.AuditEvent{ //nolint:errcheck
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			EntityType:  "work_order",
			Action:      "update",
			PerformedBy: "agent-1",
		})
	}

	rec := doRequest(h, "POST", "/api/compliance/report", "fop_admin-token", map[string]any{
		"dateFrom": base.Format(time.RFC3339),
		"dateTo":   base.Add(time.Hour).Format(time.RFC3339),
		"format":   "json",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	summary := body["summary"].(map[string]any)
	if summary["total_events"] != float64(5) {
		t.Errorf("total_events = %v, want 5", summary["total_events"])
	}

	// CSV format returns an attachment.
	rec = doRequest(h, "POST", "/api/compliance/report", "fop_admin-token", map[string]any{
		"dateFrom": base.Format(time.RFC3339),
		"dateTo":   base.Add(time.Hour).Format(time.RFC3339),
		"format":   "csv",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content-type = %q, want text/csv", ct)
	}
	if !strings.Contains(rec.Body.String(), "TotalEvents,5") {
		t.Errorf("csv missing summary: %s", rec.Body.String())
	}

	// Inverted range fails validation.
	rec = doRequest(h, "POST", "/api/compliance/report", "fop_admin-token", map[string]any{
		"dateFrom": base.Add(time.Hour).Format(time.RFC3339),
		"dateTo":   base.Format(time.RFC3339),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted range status = %d, want 400", rec.Code)
	}
}

func TestRoleHierarchyEndpoint(t *testing.T) {
	_, h, _ := newTestServer(t)

	// roles:read is granted at manager and above; administrator qualifies.
	rec := doRequest(h, "GET", "/api/roles/hierarchy", "fop_admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	hierarchy := body["hierarchy"].([]any)
	if len(hierarchy) != 5 {
		t.Errorf("hierarchy has %d roles, want 5", len(hierarchy))
	}

	rec = doRequest(h, "GET", "/api/roles/hierarchy", "fop_agent-token", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("field_agent status = %d, want 403", rec.Code)
	}
}

func TestViolationResolutionFlow(t *testing.T) {
	srv, h, _ := newTestServer(t)

	// Provoke a permission violation: field_agent hitting audit logs.
	doRequest(h, "GET", "/api/audit-logs", "fop_agent-token", nil)

	rec := doRequest(h, "GET", "/api/security/violations", "fop_admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data := body["data"].([]any)
	if len(data) == 0 {
		t.Fatal("expected at least one violation")
	}
	id := data[0].(map[string]any)["id"].(string)

	rec = doRequest(h, "POST", "/api/security/violations/"+id+"/resolve", "fop_admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}

	resolved := srv.Enforcer().Ledger().List(nil, 0)
	found := false
	for _, v := range resolved {
		if v.ID == id {
			found = true
			if !v.Resolved || v.ResolvedBy != "admin-1" {
				t.Errorf("violation not marked resolved: %+v", v)
			}
		}
	}
	if !found {
		t.Error("resolved violation missing from ledger")
	}

	rec = doRequest(h, "POST", "/api/security/violations/"+id+"/resolve", "fop_admin-token", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double resolve status = %d, want 404", rec.Code)
	}
}

func TestPolicyToggleEndpoints(t *testing.T) {
	_, h, _ := newTestServer(t)

	// security:admin is operations_director only.
	rec := doRequest(h, "POST", "/api/security/policies/api_rate_limiting/disable", "fop_admin-token", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("administrator toggle status = %d, want 403", rec.Code)
	}

	rec = doRequest(h, "POST", "/api/security/policies/api_rate_limiting/disable", "fop_director-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("director toggle status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["enabled"] != false {
		t.Errorf("enabled = %v, want false", body["enabled"])
	}

	rec = doRequest(h, "POST", "/api/security/policies/no_such_policy/enable", "fop_director-token", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown policy status = %d, want 404", rec.Code)
	}
}

func TestSecurityTrailValidatesHours(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := doRequest(h, "GET", "/api/security/audit-trail?hours=500", "fop_admin-token", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	rec = doRequest(h, "GET", "/api/security/audit-trail?hours=48", "fop_admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["hours"] != float64(48) {
		t.Errorf("hours = %v, want 48", body["hours"])
	}
}

func TestInfrastructureStatus(t *testing.T) {
	_, h, _ := newTestServer(t)

	rec := doRequest(h, "GET", "/api/infrastructure/status", "fop_admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	services := body["services"].([]any)
	if len(services) == 0 {
		t.Error("expected service names")
	}
	if _, ok := body["permissions"]; !ok {
		t.Error("expected permission report")
	}
}

func TestRequestsAreAudited(t *testing.T) {
	srv, h, store := newTestServer(t)

	doRequest(h, "GET", "/api/health", "", nil)
	srv.auditor.Close() // drain the async queue

	store.mu.Lock()
	defer store.mu.Unlock()
	found := false
	for _, e := range store.events {
		if e.EntityType == "http_request" && e.EntityID == "/api/health" {
			found = true
			if e.RequestID == "" {
				t.Error("request audit event missing request id")
			}
		}
	}
	if !found {
		t.Errorf("no http_request audit event recorded; got %d events", len(store.events))
	}
}

func TestAuditExportEndpoint(t *testing.T) {
	_, h, store := newTestServer(t)
	store.WriteAuditEvent(context.Background(), &models.AuditEvent{ //nolint:errcheck
		Timestamp: time.Now(), EntityType: "security", Action: "login", PerformedBy: "u1",
	})

	rec := doRequest(h, "POST", "/api/audit-logs/export", "fop_admin-token", map[string]any{
		"format": "csv", "entityType": "security",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content-type = %q, want text/csv", ct)
	}

	rec = doRequest(h, "POST", "/api/audit-logs/export", "fop_admin-token", map[string]any{
		"format": "xml",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad format status = %d, want 400", rec.Code)
	}
}

func TestUnknownSubjectPermissionCheck(t *testing.T) {
	_, h, _ := newTestServer(t)

	// Admin checking an unknown principal: default-deny, no error.
	rec := doRequest(h, "POST", "/api/permissions/check", "fop_admin-token", map[string]any{
		"resource": "work_orders", "action": "read", "userId": "ghost",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["hasPermission"] != false {
		t.Errorf("hasPermission = %v, want false", body["hasPermission"])
	}
	if body["effectiveRole"] != "" {
		t.Errorf("effectiveRole = %v, want empty", body["effectiveRole"])
	}
}

func TestRiskScoring(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/health?q=../../etc/passwd", nil)
	if score := scoreRequest(req); score < 50 {
		t.Errorf("traversal request score = %d, want >= 50", score)
	}
	req = httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("User-Agent", "test")
	if score := scoreRequest(req); score != 0 {
		t.Errorf("benign request score = %d, want 0", score)
	}
}
