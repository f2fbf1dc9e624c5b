package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/claimsdb/internal/platform/apperr"
)

// SQLSTATE codes the repositories translate.
const (
	codeNotNullViolation    = "23502"
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"

	// Class 22 covers data exceptions such as 22001 string_data_right_truncation
	// and 22003 numeric_value_out_of_range.
	classDataException = "22"
)

// Classify converts storage errors into apperr kinds. entity and key name
// the row the caller was working on; unrecognised errors pass through.
func Classify(err error, entity, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity, key)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return apperr.Conflict(entity, key)
	case codeForeignKeyViolation:
		target := pgErr.ConstraintName
		if target == "" {
			target = entity
		}
		return apperr.MissingRef(target, key)
	case codeCheckViolation, codeNotNullViolation:
		field := pgErr.ColumnName
		if field == "" {
			field = pgErr.ConstraintName
		}
		return apperr.Invalid(field, "%s", pgErr.Message)
	}
	if strings.HasPrefix(pgErr.Code, classDataException) {
		field := pgErr.ColumnName
		if field == "" {
			field = entity
		}
		return apperr.Invalid(field, "%s", pgErr.Message)
	}
	return err
}
