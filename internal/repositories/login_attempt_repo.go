package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/halcyonsec/sentinel/internal/database"
	"github.com/halcyonsec/sentinel/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends a login attempt fact
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (id, identity, ip_address, user_agent, succeeded, subject_id, attempt_time, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.Identity,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Succeeded,
		attempt.SubjectID,
		attempt.AttemptTime,
		attempt.ExpiresAt,
	)

	return database.MapPostgresError(err)
}

// CountFailuresByIdentity returns the number of failed attempts for an identity within a time window
func (r *LoginAttemptRepository) CountFailuresByIdentity(ctx context.Context, identity string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE identity = $1 AND succeeded = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, identity, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// CountFailuresByOrigin returns the number of failed attempts from an origin within a time window
func (r *LoginAttemptRepository) CountFailuresByOrigin(ctx context.Context, origin string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND succeeded = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, origin, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// LatestFailureByIdentity returns the timestamp of the most recent failed attempt for an identity
func (r *LoginAttemptRepository) LatestFailureByIdentity(ctx context.Context, identity string, since time.Time) (*time.Time, error) {
	query := `
		SELECT attempt_time FROM login_attempts
		WHERE identity = $1 AND succeeded = false AND attempt_time >= $2
		ORDER BY attempt_time DESC
		LIMIT 1
	`

	var failureTime time.Time
	err := r.db.Pool.QueryRow(ctx, query, identity, since).Scan(&failureTime)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &failureTime, nil
}

// LatestFailureByOrigin returns the timestamp of the most recent failed attempt from an origin
func (r *LoginAttemptRepository) LatestFailureByOrigin(ctx context.Context, origin string, since time.Time) (*time.Time, error) {
	query := `
		SELECT attempt_time FROM login_attempts
		WHERE ip_address = $1 AND succeeded = false AND attempt_time >= $2
		ORDER BY attempt_time DESC
		LIMIT 1
	`

	var failureTime time.Time
	err := r.db.Pool.QueryRow(ctx, query, origin, since).Scan(&failureTime)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &failureTime, nil
}

// ListSince returns all attempts recorded at or after the given time, for
// batch analysis
func (r *LoginAttemptRepository) ListSince(ctx context.Context, since time.Time) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, identity, ip_address, user_agent, succeeded, subject_id, attempt_time, expires_at
		FROM login_attempts
		WHERE attempt_time >= $1
		ORDER BY attempt_time ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		var attempt models.LoginAttempt
		err := rows.Scan(
			&attempt.ID, &attempt.Identity, &attempt.IPAddress, &attempt.UserAgent,
			&attempt.Succeeded, &attempt.SubjectID, &attempt.AttemptTime, &attempt.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, &attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating login attempt rows: %w", err)
	}

	return attempts, nil
}

// DeleteExpired removes login attempts past their retention horizon
func (r *LoginAttemptRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
