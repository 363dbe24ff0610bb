package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pgxpool connection and returns a ready store.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

// --- Audit events ---

func (p *PostgresStore) WriteAuditEvent(ctx context.Context, e *models.AuditEvent) error {
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding audit metadata: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO audit_events
		 (timestamp, entity_type, entity_id, action, performed_by, severity, request_id, client_ip, user_agent, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.Timestamp, e.EntityType, e.EntityID, e.Action, e.PerformedBy,
		string(e.Severity), e.RequestID, e.ClientIP, e.UserAgent, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *PostgresStore) QueryAuditEvents(ctx context.Context, filter AuditFilter) ([]*models.AuditEvent, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, timestamp, entity_type, entity_id, action, performed_by, severity, request_id, client_ip, user_agent, metadata FROM audit_events WHERE 1=1`)
	args := []any{}
	n := 1
	if filter.EntityType != "" {
		fmt.Fprintf(&query, ` AND entity_type = $%d`, n)
		args = append(args, filter.EntityType)
		n++
	}
	if filter.EntityID != "" {
		fmt.Fprintf(&query, ` AND entity_id = $%d`, n)
		args = append(args, filter.EntityID)
		n++
	}
	if filter.Action != "" {
		fmt.Fprintf(&query, ` AND action = $%d`, n)
		args = append(args, filter.Action)
		n++
	}
	if filter.PerformedBy != "" {
		fmt.Fprintf(&query, ` AND performed_by = $%d`, n)
		args = append(args, filter.PerformedBy)
		n++
	}
	if filter.Severity != "" {
		fmt.Fprintf(&query, ` AND severity = $%d`, n)
		args = append(args, string(filter.Severity))
		n++
	}
	if filter.From != nil {
		fmt.Fprintf(&query, ` AND timestamp >= $%d`, n)
		args = append(args, filter.From)
		n++
	}
	if filter.To != nil {
		fmt.Fprintf(&query, ` AND timestamp <= $%d`, n)
		args = append(args, filter.To)
		n++
	}
	if filter.OldestFirst {
		query.WriteString(` ORDER BY timestamp ASC`)
	} else {
		query.WriteString(` ORDER BY timestamp DESC`)
	}
	if filter.Limit > 0 {
		fmt.Fprintf(&query, ` LIMIT $%d`, n)
		args = append(args, filter.Limit)
		n++
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&query, ` OFFSET $%d`, n)
		args = append(args, filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		var severity string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EntityType, &e.EntityID, &e.Action,
			&e.PerformedBy, &severity, &e.RequestID, &e.ClientIP, &e.UserAgent, &metaJSON); err != nil {
			return nil, err
		}
		e.Severity = models.Severity(severity)
		json.Unmarshal(metaJSON, &e.Metadata) //nolint:errcheck
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (p *PostgresStore) CountAuditEvents(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&count)
	return count, err
}

// --- Principals ---

func (p *PostgresStore) GetPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, roles, company_id FROM principals WHERE id = $1`, id,
	)
	var pr models.Principal
	var rolesJSON []byte
	if err := row.Scan(&pr.ID, &rolesJSON, &pr.CompanyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(rolesJSON, &pr.Roles); err != nil {
		return nil, fmt.Errorf("decoding principal roles: %w", err)
	}
	return &pr, nil
}

// --- API tokens ---

func (p *PostgresStore) GetAPIToken(ctx context.Context, tokenHash string) (*models.APIToken, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, principal_id, display_name, created_at, expires_at, revoked_at
		 FROM api_tokens WHERE token_hash = $1`, tokenHash,
	)
	var t models.APIToken
	var expiresAt *time.Time
	if err := row.Scan(&t.ID, &t.PrincipalID, &t.DisplayName, &t.CreatedAt, &expiresAt, &t.RevokedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if expiresAt != nil {
		t.ExpiresAt = *expiresAt
	}
	return &t, nil
}
