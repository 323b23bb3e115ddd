package database

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/halcyonsec/sentinel/internal/models"
)

func TestMapPostgresError(t *testing.T) {
	assert.NoError(t, MapPostgresError(nil))

	assert.ErrorIs(t, MapPostgresError(pgx.ErrNoRows), models.ErrNotFound)

	assert.ErrorIs(t, MapPostgresError(&pgconn.PgError{Code: "23505"}), models.ErrConflict)
	assert.ErrorIs(t, MapPostgresError(&pgconn.PgError{Code: "23503"}), models.ErrBadRequest)
	assert.ErrorIs(t, MapPostgresError(&pgconn.PgError{Code: "23502"}), models.ErrBadRequest)
}

func TestMapPostgresError_BackendDownIsStoreUnavailable(t *testing.T) {
	// connection_failure
	err := MapPostgresError(&pgconn.PgError{Code: "08006"})
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	// admin_shutdown
	err = MapPostgresError(&pgconn.PgError{Code: "57P01"})
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	// No server response at all.
	err = MapPostgresError(errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"))
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestMapPostgresError_CallerMistakesAreNotOutages(t *testing.T) {
	err := MapPostgresError(&pgconn.PgError{Code: "42601"}) // syntax_error
	assert.NotErrorIs(t, err, models.ErrStoreUnavailable)

	err = MapPostgresError(&pgconn.PgError{Code: "23505"})
	assert.NotErrorIs(t, err, models.ErrStoreUnavailable)
}
