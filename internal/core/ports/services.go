package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"exchange-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PasswordHasher handles one-way password hashing.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, digest string) (bool, error)
	// NeedsRehash reports digests produced by a legacy algorithm or by
	// weaker parameters than the current ones.
	NeedsRehash(digest string) bool
}

// TokenIssuer mints and validates signed bearer tokens.
type TokenIssuer interface {
	Issue(identity *domain.Identity, ttl time.Duration) (*domain.Token, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed token claims.
type TokenClaims struct {
	TokenID    string
	Subject    uuid.UUID
	Identifier string
	Role       domain.Role
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// RevocationStore records per-identity token cut-offs. Tokens issued before
// the cut-off are rejected by AccountService.Authenticate.
type RevocationStore interface {
	RevokeBefore(ctx context.Context, subject uuid.UUID, cutoff time.Time) error
	// RevokedBefore returns the cut-off and true if one is recorded.
	RevokedBefore(ctx context.Context, subject uuid.UUID) (time.Time, bool, error)
}

// Clock is the time source used for timestamps and token expiry.
type Clock interface {
	Now() time.Time
}

// --- Service Ports (Business Logic) ---

// AccountService implements identity operations.
type AccountService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.Identity, error)
	Login(ctx context.Context, identifier, password string) (*domain.Token, error)
	Authenticate(ctx context.Context, tokenString string) (*TokenClaims, error)
	GetIdentity(ctx context.Context, id uuid.UUID) (*domain.Identity, error)
	ChangePassword(ctx context.Context, identifier, currentPassword, newPassword string) error
	ChangeUsername(ctx context.Context, currentIdentifier, newIdentifier string) (*domain.Identity, error)
	Ban(ctx context.Context, identifier string) error
	DeleteAccount(ctx context.Context, identifier, password string) error
}

// RegisterRequest holds input for account registration.
type RegisterRequest struct {
	Identifier string
	Password   string
	Role       domain.Role // empty means RoleUser
	FirstName  *string
	LastName   *string
	Email      *string
}

// LedgerService implements balance operations.
type LedgerService interface {
	Currencies() []domain.Currency
	GetBalance(ctx context.Context, ownerID uuid.UUID, currency string) (*domain.BalanceRecord, error)
	GetAllBalances(ctx context.Context, ownerID uuid.UUID) ([]domain.BalanceRecord, error)
	Deposit(ctx context.Context, ownerID uuid.UUID, currency string, amount decimal.Decimal) (*domain.BalanceRecord, error)
	Withdraw(ctx context.Context, ownerID uuid.UUID, currency string, amount decimal.Decimal) (*domain.BalanceRecord, error)
}
