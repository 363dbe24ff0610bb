package api

import (
	"net/http"
	"runtime"
	"time"
)

// HealthHandler handles GET /api/health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"environment":    s.cfg.Environment,
		"memory": map[string]any{
			"alloc_bytes":      mem.Alloc,
			"sys_bytes":        mem.Sys,
			"num_gc":           mem.NumGC,
			"goroutines":       runtime.NumGoroutine(),
		},
	})
}

// InfrastructureStatusHandler handles GET /api/infrastructure/status
func (s *Server) InfrastructureStatusHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireAccess(w, r, "infrastructure", "read")
	if !ok {
		return
	}
	s.auditAccess(r, "infrastructure", "status_read", nil)

	totalEvents, err := s.store.CountAuditEvents(r.Context())
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	stats := s.enforcer.Statistics()

	writeJSON(w, http.StatusOK, map[string]any{
		"services": []string{"rbac", "audit", "security_enforcement", "rate_limiter", "event_bus"},
		"audit": map[string]any{
			"total_events":   totalEvents,
			"dropped_events": s.auditor.Dropped(),
		},
		"security": map[string]any{
			"violations": stats,
			"policies":   len(s.enforcer.Policies()),
		},
		"permissions":  s.rbac.PermissionReport(),
		"requested_by": principal.ID,
	})
}
