package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/audit"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/storage"
	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
)

// parseAuditFilter builds an AuditFilter from query parameters. Validation
// failures surface as ValidationError before any store access.
func parseAuditFilter(r *http.Request) (storage.AuditFilter, error) {
	q := r.URL.Query()
	filter := storage.AuditFilter{
		EntityType:  q.Get("entityType"),
		EntityID:    q.Get("entityId"),
		Action:      q.Get("action"),
		PerformedBy: q.Get("performedBy"),
		Limit:       100,
	}

	if v := q.Get("riskLevel"); v != "" {
		sev := models.Severity(v)
		if !sev.Valid() {
			return filter, validationErr("riskLevel", "must be one of low, medium, high, critical")
		}
		filter.Severity = sev
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			return filter, validationErr("limit", "must be an integer between 1 and 1000")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, validationErr("offset", "must be a non-negative integer")
		}
		filter.Offset = n
	}
	if v := q.Get("dateFrom"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, validationErr("dateFrom", "must be RFC3339")
		}
		filter.From = &t
	}
	if v := q.Get("dateTo"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, validationErr("dateTo", "must be RFC3339")
		}
		filter.To = &t
	}
	return filter, nil
}

// AuditLogsHandler handles GET /api/audit-logs
func (s *Server) AuditLogsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAccess(w, r, "audit", "read"); !ok {
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		s.auditAccess(r, "audit_log", "query_rejected", map[string]any{"error": err.Error()})
		writeAPIError(w, r, err)
		return
	}
	s.auditAccess(r, "audit_log", "query", nil)

	events, err := s.auditor.Query(r.Context(), filter)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  events,
		"count": len(events),
	})
}

// AuditExportHandler handles POST /api/audit-logs/export
func (s *Server) AuditExportHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAccess(w, r, "audit", "read"); !ok {
		return
	}

	var req struct {
		Format      string `json:"format"`
		EntityType  string `json:"entityType"`
		PerformedBy string `json:"performedBy"`
		DateFrom    string `json:"dateFrom"`
		DateTo      string `json:"dateTo"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, validationErr("body", "invalid JSON"))
		return
	}
	format := audit.ExportFormat(req.Format)
	if format != audit.ExportJSON && format != audit.ExportCSV {
		writeAPIError(w, r, validationErr("format", "must be json or csv"))
		return
	}

	filter := storage.AuditFilter{
		EntityType:  req.EntityType,
		PerformedBy: req.PerformedBy,
		Limit:       1000,
	}
	if req.DateFrom != "" {
		t, err := time.Parse(time.RFC3339, req.DateFrom)
		if err != nil {
			writeAPIError(w, r, validationErr("dateFrom", "must be RFC3339"))
			return
		}
		filter.From = &t
	}
	if req.DateTo != "" {
		t, err := time.Parse(time.RFC3339, req.DateTo)
		if err != nil {
			writeAPIError(w, r, validationErr("dateTo", "must be RFC3339"))
			return
		}
		filter.To = &t
	}

	s.auditAccess(r, "audit_log", "export", map[string]any{"format": req.Format})

	data, err := s.auditor.Export(r.Context(), format, filter)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if format == audit.ExportCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}
