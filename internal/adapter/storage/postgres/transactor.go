package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Transactor runs units of work in a database transaction.
type Transactor struct {
	pool Pool
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// WithinTx begins a transaction, runs fn and commits. Any error from fn, or a
// cancelled ctx, rolls the transaction back. fn's error is returned as is.
func (t *Transactor) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
