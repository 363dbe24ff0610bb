package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// SecurityTrailHandler handles GET /api/security/audit-trail
func (s *Server) SecurityTrailHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAccess(w, r, "security", "read"); !ok {
		return
	}

	q := r.URL.Query()
	hours := 24
	if v := q.Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 168 {
			writeAPIError(w, r, validationErr("hours", "must be an integer between 1 and 168"))
			return
		}
		hours = n
	}
	userID := q.Get("userId")

	s.auditAccess(r, "security", "audit_trail_read", map[string]any{"hours": hours})

	events, err := s.auditor.SecurityTrail(r.Context(), userID, hours)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  events,
		"hours": hours,
	})
}

// ViolationsHandler handles GET /api/security/violations
func (s *Server) ViolationsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAccess(w, r, "security", "read"); !ok {
		return
	}

	q := r.URL.Query()
	var resolved *bool
	if v := q.Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeAPIError(w, r, validationErr("resolved", "must be true or false"))
			return
		}
		resolved = &b
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeAPIError(w, r, validationErr("limit", "must be an integer between 1 and 1000"))
			return
		}
		limit = n
	}

	s.auditAccess(r, "security", "violations_read", nil)

	violations := s.enforcer.Ledger().List(resolved, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  violations,
		"count": len(violations),
	})
}

// ResolveViolationHandler handles POST /api/security/violations/{id}/resolve
func (s *Server) ResolveViolationHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireAccess(w, r, "security", "write")
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeAPIError(w, r, validationErr("id", "must not be empty"))
		return
	}

	if !s.enforcer.ResolveViolation(id, principal.ID) {
		writeError(w, http.StatusNotFound, "violation not found or already resolved")
		return
	}
	s.auditAccess(r, "security", "violation_resolved", map[string]any{"violation_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"resolved": true, "id": id})
}

// SecurityStatisticsHandler handles GET /api/security/statistics
func (s *Server) SecurityStatisticsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAccess(w, r, "security", "read"); !ok {
		return
	}
	s.auditAccess(r, "security", "statistics_read", nil)
	writeJSON(w, http.StatusOK, s.enforcer.Statistics())
}

// PoliciesHandler handles GET /api/security/policies
func (s *Server) PoliciesHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAccess(w, r, "security", "read"); !ok {
		return
	}
	s.auditAccess(r, "security", "policies_read", nil)
	writeJSON(w, http.StatusOK, map[string]any{"policies": s.enforcer.Policies()})
}

// PolicyEnableHandler handles POST /api/security/policies/{name}/enable
func (s *Server) PolicyEnableHandler(w http.ResponseWriter, r *http.Request) {
	s.setPolicyEnabled(w, r, true)
}

// PolicyDisableHandler handles POST /api/security/policies/{name}/disable
func (s *Server) PolicyDisableHandler(w http.ResponseWriter, r *http.Request) {
	s.setPolicyEnabled(w, r, false)
}

func (s *Server) setPolicyEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	if _, ok := s.requireAccess(w, r, "security", "admin"); !ok {
		return
	}

	name := chi.URLParam(r, "name")
	if !s.enforcer.SetPolicyEnabled(name, enabled) {
		writeError(w, http.StatusNotFound, "policy not found")
		return
	}
	action := "policy_disabled"
	if enabled {
		action = "policy_enabled"
	}
	s.auditAccess(r, "security", action, map[string]any{"policy": name})
	writeJSON(w, http.StatusOK, map[string]any{"policy": name, "enabled": enabled})
}
