package postgres

import (
	"errors"
	"fmt"

	"exchange-core/internal/core/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes mapped onto storage sentinels.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNumericOutOfRange   = "22003"
)

// mapPgError wraps err with op and, for constraint violations, with the
// matching ports sentinel so services can classify it.
func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, ports.ErrDuplicate, err)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %w", op, ports.ErrRecordNotFound, err)
		case pgCheckViolation:
			return fmt.Errorf("%s: %w: %w", op, ports.ErrNegativeBalance, err)
		case pgNumericOutOfRange:
			return fmt.Errorf("%s: %w: %w", op, ports.ErrAmountOutOfRange, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
