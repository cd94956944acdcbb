package postgres

import (
	"context"
	"errors"
	"fmt"

	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const identityColumns = `id, identifier, password_hash, status, role, first_name, last_name, email,
	created_at, updated_at, last_login_at`

// IdentityRepo implements ports.IdentityRepository.
type IdentityRepo struct {
	pool Pool
	tx   *Transactor
}

// NewIdentityRepo creates a new IdentityRepo.
func NewIdentityRepo(pool Pool) *IdentityRepo {
	return &IdentityRepo{pool: pool, tx: NewTransactor(pool)}
}

// Create inserts a new identity into the database.
func (r *IdentityRepo) Create(ctx context.Context, i *domain.Identity) error {
	query := `INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		i.ID, i.Identifier, i.PasswordHash, string(i.Status), string(i.Role),
		i.FirstName, i.LastName, i.Email,
		i.CreatedAt, i.UpdatedAt, i.LastLoginAt,
	)
	if err != nil {
		return mapPgError("insert identity", err)
	}
	return nil
}

// GetByID fetches an identity by its UUID.
func (r *IdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`

	i, err := scanIdentity(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity by id: %w", err)
	}
	return i, nil
}

// GetByIdentifier fetches an identity by its unique identifier.
func (r *IdentityRepo) GetByIdentifier(ctx context.Context, identifier string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE identifier = $1`

	i, err := scanIdentity(r.pool.QueryRow(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity by identifier: %w", err)
	}
	return i, nil
}

// Update locks the row with SELECT ... FOR UPDATE, applies fn and writes the
// mutable columns back in the same transaction.
func (r *IdentityRepo) Update(ctx context.Context, id uuid.UUID, fn ports.IdentityMutation) (*domain.Identity, error) {
	var updated *domain.Identity

	err := r.tx.WithinTx(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1 FOR UPDATE`

		current, err := scanIdentity(tx.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("identity %s: %w", id, ports.ErrRecordNotFound)
			}
			return fmt.Errorf("lock identity: %w", err)
		}

		if err := fn(current); err != nil {
			return err
		}

		update := `UPDATE identities
			SET identifier = $2, password_hash = $3, status = $4, role = $5,
				first_name = $6, last_name = $7, email = $8,
				updated_at = $9, last_login_at = $10
			WHERE id = $1`

		tag, err := tx.Exec(ctx, update,
			id, current.Identifier, current.PasswordHash, string(current.Status), string(current.Role),
			current.FirstName, current.LastName, current.Email,
			current.UpdatedAt, current.LastLoginAt,
		)
		if err != nil {
			return mapPgError("update identity", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("identity %s: %w", id, ports.ErrRecordNotFound)
		}

		current.ID = id
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the identity. Its balance rows go with it through
// ON DELETE CASCADE, within the same statement.
func (r *IdentityRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	i := &domain.Identity{}
	var status, role string
	err := row.Scan(
		&i.ID, &i.Identifier, &i.PasswordHash, &status, &role,
		&i.FirstName, &i.LastName, &i.Email,
		&i.CreatedAt, &i.UpdatedAt, &i.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	i.Status = domain.IdentityStatus(status)
	i.Role = domain.Role(role)
	return i, nil
}
