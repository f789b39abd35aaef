package dbx

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories care about.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeInvalidText          = "22P02"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign_key_violation.
func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == codeForeignKeyViolation
}

// IsInvalidText reports whether PostgreSQL rejected a parameter's text form,
// for instance a malformed UUID.
func IsInvalidText(err error) bool {
	return pgCode(err) == codeInvalidText
}

// IsSerializationFailure reports whether a SERIALIZABLE transaction lost a
// conflict with a concurrent one and may be retried.
func IsSerializationFailure(err error) bool {
	return pgCode(err) == codeSerializationFailure
}
