package postgres

import (
	"errors"
	"testing"

	"exchange-core/internal/core/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapPgError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique", &pgconn.PgError{Code: pgUniqueViolation}, ports.ErrDuplicate},
		{"foreign key", &pgconn.PgError{Code: pgForeignKeyViolation}, ports.ErrRecordNotFound},
		{"check", &pgconn.PgError{Code: pgCheckViolation}, ports.ErrNegativeBalance},
		{"numeric overflow", &pgconn.PgError{Code: pgNumericOutOfRange}, ports.ErrAmountOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapPgError("op", tt.err)
			assert.ErrorIs(t, err, tt.want)
			var pgErr *pgconn.PgError
			assert.True(t, errors.As(err, &pgErr), "original error must stay in the chain")
		})
	}
}

func TestMapPgError_Other(t *testing.T) {
	cause := errors.New("connection reset")
	err := mapPgError("op", cause)

	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ports.ErrDuplicate)
	assert.Equal(t, "op: connection reset", err.Error())

	err = mapPgError("op", &pgconn.PgError{Code: "40001"})
	assert.NotErrorIs(t, err, ports.ErrDuplicate)
	assert.NotErrorIs(t, err, ports.ErrNegativeBalance)
}
