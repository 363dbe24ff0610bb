package audit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/storage"
	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
)

func exportFixture() *Logger {
	store := &memEventStore{}
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	store.events = []*models.AuditEvent{
		{ID: 1, Timestamp: base, EntityType: "security", Action: "login", PerformedBy: "u1", Severity: models.SeverityLow},
		{ID: 2, Timestamp: base.Add(time.Minute), EntityType: "work_order", Action: "update", PerformedBy: "u2"},
	}
	return NewLogger(store, nil)
}

func TestExportJSON(t *testing.T) {
	l := exportFixture()
	defer l.Close()

	data, err := l.Export(context.Background(), ExportJSON, storage.AuditFilter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var evts []*models.AuditEvent
	if err := json.Unmarshal(data, &evts); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(evts) != 2 {
		t.Errorf("exported %d events, want 2", len(evts))
	}
}

func TestExportCSV(t *testing.T) {
	l := exportFixture()
	defer l.Close()

	data, err := l.Export(context.Background(), ExportCSV, storage.AuditFilter{EntityType: "security"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv has %d lines, want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "ID,Timestamp,EntityType") {
		t.Errorf("unexpected csv header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "login") {
		t.Errorf("csv row missing action: %q", lines[1])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	l := exportFixture()
	defer l.Close()

	if _, err := l.Export(context.Background(), "xml", storage.AuditFilter{}); err == nil {
		t.Error("unknown format should be rejected")
	}
}
