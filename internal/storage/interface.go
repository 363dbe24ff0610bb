package storage

import (
	"context"
	"errors"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnavailable is returned when the backing store cannot be reached.
// Audit writes treat it as a degrade-to-best-effort signal, never a request
// failure.
var ErrUnavailable = errors.New("storage unavailable")

// Store defines the persistence interface for the security core: durable
// audit events plus principal and token lookups. Violations are deliberately
// absent — the ledger is in-memory (see internal/security).
type Store interface {
	// Audit events (append-only; no update or delete exists)
	WriteAuditEvent(ctx context.Context, event *models.AuditEvent) error
	QueryAuditEvents(ctx context.Context, filter AuditFilter) ([]*models.AuditEvent, error)
	CountAuditEvents(ctx context.Context) (int64, error)

	// Principals
	GetPrincipal(ctx context.Context, id string) (*models.Principal, error)

	// API tokens
	GetAPIToken(ctx context.Context, tokenHash string) (*models.APIToken, error)

	// Lifecycle
	Close()
}

// AuditFilter specifies query parameters for audit event retrieval. All
// fields are optional and ANDed together.
type AuditFilter struct {
	EntityType  string
	EntityID    string
	Action      string
	PerformedBy string
	Severity    models.Severity
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
	// OldestFirst flips the default newest-first ordering.
	OldestFirst bool
}
