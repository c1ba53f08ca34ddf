package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const codeExclusionViolation = "23P01"

// IsConflict reports an exclusion-constraint violation, which the schemas use to forbid
// overlapping time ranges.
func IsConflict(err error) bool {
	return hasCode(err, codeExclusionViolation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
