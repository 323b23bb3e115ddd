package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/halcyonsec/sentinel/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into the module's sentinel
// errors. Caller mistakes map to their specific sentinels; anything that
// points at the database being unreachable or shutting down is wrapped in
// models.ErrStoreUnavailable so fail-open/fail-closed policy can key on it.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23503": // foreign_key_violation
			return models.ErrBadRequest
		case "23502": // not_null_violation
			return models.ErrBadRequest
		}
		// Class 08 is connection exceptions, class 57 operator intervention
		// (shutdown, crash); both mean the backend is out, not the caller.
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57") {
			return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
		}
		return err
	}

	// No server response at all: dial failures, closed pools, timeouts.
	return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
}
