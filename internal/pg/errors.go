package pg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"klinika/internal/apperr"
)

// mapError переводит ошибки Postgres в apperr по SQLSTATE.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return apperr.Conflict("Duplicate value violates %s", pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return apperr.Validation("referenced record not found")
		case "23502": // not_null_violation
			return apperr.FieldValidation(pgErr.ColumnName, "Missing required field: %s", pgErr.ColumnName)
		case "42P01": // undefined_table
			return apperr.Internal(op+": migration required", err)
		}
	}
	return apperr.Internal(op, err)
}
