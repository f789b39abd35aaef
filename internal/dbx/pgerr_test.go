package dbx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestPgErrorClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "tms_sessions_name_key"}
	fk := &pgconn.PgError{Code: "23503"}
	serial := &pgconn.PgError{Code: "40001"}
	badText := &pgconn.PgError{Code: "22P02"}

	tests := []struct {
		name       string
		err        error
		unique     bool
		foreignKey bool
		serial     bool
		invalid    bool
	}{
		{"unique", unique, true, false, false, false},
		{"wrapped unique", fmt.Errorf("db error: %w", unique), true, false, false, false},
		{"fk", fk, false, true, false, false},
		{"serialization", fmt.Errorf("commit: %w", serial), false, false, true, false},
		{"invalid text", badText, false, false, false, true},
		{"plain error", errors.New("boom"), false, false, false, false},
		{"nil", nil, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueViolation(tt.err))
			assert.Equal(t, tt.foreignKey, IsForeignKeyViolation(tt.err))
			assert.Equal(t, tt.serial, IsSerializationFailure(tt.err))
			assert.Equal(t, tt.invalid, IsInvalidText(tt.err))
		})
	}
}
