package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/storage"
	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
)

// ExportFormat selects the audit trail export encoding.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// Export renders events matching the filter in the requested format.
func (l *Logger) Export(ctx context.Context, format ExportFormat, filter storage.AuditFilter) ([]byte, error) {
	switch format {
	case ExportJSON, ExportCSV:
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}

	evts, err := l.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	if format == ExportCSV {
		return exportCSV(evts)
	}
	return json.MarshalIndent(evts, "", "  ")
}

// ReportCSV renders a compliance report as CSV: a summary block followed by
// the event rows.
func ReportCSV(report *models.ComplianceReport) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"Summary", ""},
		{"TotalEvents", strconv.Itoa(report.Summary.TotalEvents)},
		{"UniqueActors", strconv.Itoa(report.Summary.UniqueActors)},
		{"From", report.Summary.From.Format(time.RFC3339)},
		{"To", report.Summary.To.Format(time.RFC3339)},
		{"", ""},
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing CSV summary: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer: %w", err)
	}

	body, err := exportCSV(report.Events)
	if err != nil {
		return nil, err
	}
	return append(buf.Bytes(), body...), nil
}

func exportCSV(evts []*models.AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"ID", "Timestamp", "EntityType", "EntityID", "Action",
		"PerformedBy", "Severity", "RequestID", "ClientIP", "UserAgent"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}

	for _, e := range evts {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.Format(time.RFC3339),
			e.EntityType,
			e.EntityID,
			e.Action,
			e.PerformedBy,
			string(e.Severity),
			e.RequestID,
			e.ClientIP,
			e.UserAgent,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("writing CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer: %w", err)
	}
	return buf.Bytes(), nil
}
