package api

import (
	"net/http"
)

// RoleHierarchyHandler handles GET /api/roles/hierarchy
func (s *Server) RoleHierarchyHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAccess(w, r, "roles", "read"); !ok {
		return
	}
	s.auditAccess(r, "roles", "hierarchy_read", nil)
	writeJSON(w, http.StatusOK, map[string]any{"hierarchy": s.rbac.Hierarchy()})
}

// PermissionCheckHandler handles POST /api/permissions/check. Any
// authenticated principal may check its own permissions; checking another
// principal's requires users:read.
func (s *Server) PermissionCheckHandler(w http.ResponseWriter, r *http.Request) {
	caller := principalFromCtx(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Resource string `json:"resource"`
		Action   string `json:"action"`
		UserID   string `json:"userId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, validationErr("body", "invalid JSON"))
		return
	}
	if req.Resource == "" {
		writeAPIError(w, r, validationErr("resource", "must not be empty"))
		return
	}
	if req.Action == "" {
		writeAPIError(w, r, validationErr("action", "must not be empty"))
		return
	}

	subjectID := caller.ID
	if req.UserID != "" && req.UserID != caller.ID {
		if _, ok := s.requireAccess(w, r, "users", "read"); !ok {
			return
		}
		subjectID = req.UserID
	}

	allowed := s.rbac.HasPermission(r.Context(), subjectID, req.Resource, req.Action)
	effectiveRole := s.rbac.EffectiveRole(r.Context(), subjectID)

	s.auditAccess(r, "permissions", "permission_checked", map[string]any{
		"subject":  subjectID,
		"resource": req.Resource,
		"action":   req.Action,
		"allowed":  allowed,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"hasPermission": allowed,
		"effectiveRole": effectiveRole,
		"resource":      req.Resource,
		"action":        req.Action,
		"userId":        subjectID,
	})
}
