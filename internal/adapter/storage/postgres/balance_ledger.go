package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// BalanceLedger implements ports.BalanceLedger on the balances table.
// Amounts travel as decimal strings so NUMERIC values never pass through
// binary floating point.
type BalanceLedger struct {
	pool Pool
	tx   *Transactor
	now  func() time.Time
}

// NewBalanceLedger creates a new BalanceLedger. A nil now means time.Now in UTC.
func NewBalanceLedger(pool Pool, now func() time.Time) *BalanceLedger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &BalanceLedger{pool: pool, tx: NewTransactor(pool), now: now}
}

// Get fetches one balance without locking.
func (l *BalanceLedger) Get(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.BalanceRecord, error) {
	query := `SELECT owner_id, currency, amount::text, updated_at
		FROM balances WHERE owner_id = $1 AND currency = $2`

	rec, err := scanBalance(l.pool.QueryRow(ctx, query, ownerID, string(currency)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return rec, nil
}

// ListByOwner fetches every balance of one owner.
func (l *BalanceLedger) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.BalanceRecord, error) {
	query := `SELECT owner_id, currency, amount::text, updated_at
		FROM balances WHERE owner_id = $1`

	rows, err := l.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var out []domain.BalanceRecord
	for rows.Next() {
		rec, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return out, nil
}

// EnsureAll inserts zero rows for missing currencies in a single statement.
// ON CONFLICT DO NOTHING makes concurrent callers safe.
func (l *BalanceLedger) EnsureAll(ctx context.Context, ownerID uuid.UUID, currencies []domain.Currency) error {
	if len(currencies) == 0 {
		return nil
	}
	codes := make([]string, len(currencies))
	for i, c := range currencies {
		codes[i] = string(c)
	}

	query := `INSERT INTO balances (owner_id, currency, amount, updated_at)
		SELECT $1, c, 0, $3 FROM unnest($2::text[]) AS c
		ON CONFLICT (owner_id, currency) DO NOTHING`

	if _, err := l.pool.Exec(ctx, query, ownerID, codes, l.now()); err != nil {
		return mapPgError("initialize balances", err)
	}
	return nil
}

// Update is one transaction: insert-if-absent, SELECT ... FOR UPDATE on the
// single row, fn, UPDATE, COMMIT. A failing fn rolls back the insert too.
func (l *BalanceLedger) Update(ctx context.Context, ownerID uuid.UUID, currency domain.Currency, fn ports.BalanceMutation) (*domain.BalanceRecord, error) {
	var result *domain.BalanceRecord

	err := l.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		now := l.now()

		insert := `INSERT INTO balances (owner_id, currency, amount, updated_at)
			VALUES ($1, $2, 0, $3)
			ON CONFLICT (owner_id, currency) DO NOTHING`
		if _, err := tx.Exec(ctx, insert, ownerID, string(currency), now); err != nil {
			return mapPgError("insert balance", err)
		}

		lock := `SELECT amount::text FROM balances
			WHERE owner_id = $1 AND currency = $2 FOR UPDATE`
		var raw string
		if err := tx.QueryRow(ctx, lock, ownerID, string(currency)).Scan(&raw); err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		current, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("parse stored amount %q: %w", raw, err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next.IsNegative() {
			return fmt.Errorf("%s %s: %w", ownerID, currency, ports.ErrNegativeBalance)
		}
		if !domain.ValidAmount(next) {
			return fmt.Errorf("%s %s: %w", ownerID, currency, ports.ErrAmountOutOfRange)
		}

		update := `UPDATE balances SET amount = $3::numeric, updated_at = $4
			WHERE owner_id = $1 AND currency = $2`
		if _, err := tx.Exec(ctx, update, ownerID, string(currency), next.String(), now); err != nil {
			return mapPgError("update balance", err)
		}

		result = &domain.BalanceRecord{
			OwnerID:   ownerID,
			Currency:  currency,
			Amount:    next,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func scanBalance(row pgx.Row) (*domain.BalanceRecord, error) {
	rec := &domain.BalanceRecord{}
	var currency, raw string
	if err := row.Scan(&rec.OwnerID, &currency, &raw, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse stored amount %q: %w", raw, err)
	}
	rec.Currency = domain.Currency(currency)
	rec.Amount = amount
	return rec, nil
}
