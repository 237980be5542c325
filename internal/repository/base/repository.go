package base

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsNotFound reports whether the error is pgx's "no rows".
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsExclusionViolation reports whether the error is the no-overlap exclusion
// constraint firing (SQLSTATE 23P01). This is how a lost date-range race
// surfaces at commit time.
func IsExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

// IsUniqueViolation reports SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsRetryable reports serialization failures and deadlocks (40001, 40P01),
// which are safe to retry with a fresh transaction.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
