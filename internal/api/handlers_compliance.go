package api

import (
	"net/http"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/audit"
)

// ComplianceReportHandler handles POST /api/compliance/report
func (s *Server) ComplianceReportHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAccess(w, r, "compliance", "read"); !ok {
		return
	}

	var req struct {
		DateFrom string `json:"dateFrom"`
		DateTo   string `json:"dateTo"`
		Format   string `json:"format"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, validationErr("body", "invalid JSON"))
		return
	}
	if req.Format == "" {
		req.Format = "json"
	}
	if req.Format != "json" && req.Format != "csv" {
		writeAPIError(w, r, validationErr("format", "must be json or csv"))
		return
	}
	from, err := time.Parse(time.RFC3339, req.DateFrom)
	if err != nil {
		writeAPIError(w, r, validationErr("dateFrom", "must be RFC3339"))
		return
	}
	to, err := time.Parse(time.RFC3339, req.DateTo)
	if err != nil {
		writeAPIError(w, r, validationErr("dateTo", "must be RFC3339"))
		return
	}
	if to.Before(from) {
		writeAPIError(w, r, validationErr("dateTo", "must not precede dateFrom"))
		return
	}

	s.auditAccess(r, "compliance", "report_generated", map[string]any{
		"from": req.DateFrom, "to": req.DateTo, "format": req.Format,
	})

	report, err := s.auditor.ComplianceReport(r.Context(), from, to)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}

	if req.Format == "csv" {
		data, err := audit.ReportCSV(report)
		if err != nil {
			writeAPIError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="compliance-report.csv"`)
		w.WriteHeader(http.StatusOK)
		w.Write(data) //nolint:errcheck
		return
	}
	writeJSON(w, http.StatusOK, report)
}
