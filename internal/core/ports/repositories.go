package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"errors"

	"exchange-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Storage-level sentinel errors. Adapters wrap these with %w; services map
// them onto apperror kinds.
var (
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrRecordNotFound is returned when an update or delete matched no row.
	ErrRecordNotFound = errors.New("record not found")
	// ErrNegativeBalance is returned when a mutation would leave a balance below zero.
	ErrNegativeBalance = errors.New("balance would become negative")

	// ErrAmountOutOfRange is returned when an amount does not fit the stored precision.
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// IdentityMutation edits an identity in place. Returning an error aborts the
// update without persisting anything.
type IdentityMutation func(identity *domain.Identity) error

// IdentityRepository persists identities (the credential store).
type IdentityRepository interface {
	// Create inserts a new identity. Wraps ErrDuplicate if the identifier is taken.
	Create(ctx context.Context, identity *domain.Identity) error
	// GetByID returns nil, nil when no identity has the id.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error)
	// GetByIdentifier returns nil, nil when no identity has the identifier.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Identity, error)
	// Update applies fn to the current identity under a per-identity lock and
	// stores the result. Errors returned by fn are passed through unchanged.
	// Wraps ErrDuplicate on identifier collision and ErrRecordNotFound when
	// the identity does not exist.
	Update(ctx context.Context, id uuid.UUID, fn IdentityMutation) (*domain.Identity, error)
	// Delete removes the identity together with all of its balance records.
	// Deleting a missing identity is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}

// BalanceMutation computes the next amount from the current one. Returning an
// error aborts the update without persisting anything.
type BalanceMutation func(current decimal.Decimal) (decimal.Decimal, error)

// BalanceLedger owns per-owner, per-currency balance records.
//
// Implementations serialize Update calls per (owner, currency) pair and never
// persist a negative amount. Records that do not exist read as absent and are
// created at zero on first mutation.
type BalanceLedger interface {
	// Get returns nil, nil when the pair has no record yet.
	Get(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.BalanceRecord, error)
	// ListByOwner returns every record of the owner in no particular order.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.BalanceRecord, error)
	// EnsureAll creates zero records for currencies the owner lacks. It is
	// idempotent under concurrent callers.
	EnsureAll(ctx context.Context, ownerID uuid.UUID, currencies []domain.Currency) error
	// Update applies fn atomically to the pair's amount and returns the
	// stored record. Wraps ErrNegativeBalance if fn yields a negative amount.
	Update(ctx context.Context, ownerID uuid.UUID, currency domain.Currency, fn BalanceMutation) (*domain.BalanceRecord, error)
}
