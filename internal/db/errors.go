package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Stores translate it into sentinel.ErrConflict.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsCheckViolation reports whether err is a Postgres check-constraint
// violation, e.g. a quota counter pushed past its cap.
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == checkViolation
}
