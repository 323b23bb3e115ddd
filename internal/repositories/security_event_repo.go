package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/halcyonsec/sentinel/internal/database"
	"github.com/halcyonsec/sentinel/internal/models"
	"github.com/jackc/pgx/v5"
)

// SecurityEventRepository handles security event data access
type SecurityEventRepository struct {
	db *database.DB
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)

	for rows.Next() {
		var event models.SecurityEvent
		err := rows.Scan(
			&event.ID, &event.ActorID, &event.ActorType, &event.TenantID,
			&event.Action, &event.Description, &event.Severity,
			&event.IPAddress, &event.UserAgent, &event.Context, &event.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

// Create appends a security event row
func (r *SecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (
			id, actor_id, actor_type, tenant_id, action, description,
			severity, ip_address, user_agent, context, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		event.ID, event.ActorID, event.ActorType, event.TenantID,
		event.Action, event.Description, event.Severity,
		event.IPAddress, event.UserAgent, event.Context, event.OccurredAt,
	)

	return database.MapPostgresError(err)
}

// ListSince returns all events recorded at or after the given time
func (r *SecurityEventRepository) ListSince(ctx context.Context, since time.Time) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, actor_id, actor_type, tenant_id, action, description,
		       severity, ip_address, user_agent, context, occurred_at
		FROM security_events
		WHERE occurred_at >= $1
		ORDER BY occurred_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return scanSecurityEventRows(rows)
}

// DeleteBefore removes events older than the cutoff. Retention is external
// policy; this is the hook the bundled retention manager uses.
func (r *SecurityEventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM security_events WHERE occurred_at < $1`
	tag, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
