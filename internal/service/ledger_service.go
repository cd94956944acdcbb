package service

import (
	"context"
	"errors"
	"fmt"

	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"
	"exchange-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	identities ports.IdentityRepository
	ledger     ports.BalanceLedger
	currencies *domain.CurrencySet
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl over the given currency set.
func NewLedgerService(
	identities ports.IdentityRepository,
	ledger ports.BalanceLedger,
	currencies *domain.CurrencySet,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		identities: identities,
		ledger:     ledger,
		currencies: currencies,
		log:        log,
	}
}

// Currencies returns the supported currencies in configuration order.
func (s *LedgerServiceImpl) Currencies() []domain.Currency {
	return s.currencies.All()
}

// GetBalance returns the owner's balance in one currency. A missing record
// reads as zero and is not created.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, ownerID uuid.UUID, currency string) (*domain.BalanceRecord, error) {
	c, err := s.parseCurrency(currency)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOwner(ctx, ownerID); err != nil {
		return nil, err
	}

	rec, err := s.ledger.Get(ctx, ownerID, c)
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("get balance: %w", err))
	}
	if rec == nil {
		zero := domain.ZeroBalance(ownerID, c)
		return &zero, nil
	}
	return rec, nil
}

// GetAllBalances returns one record per supported currency, in set order.
// Missing records are created at zero first.
func (s *LedgerServiceImpl) GetAllBalances(ctx context.Context, ownerID uuid.UUID) ([]domain.BalanceRecord, error) {
	if err := s.ensureOwner(ctx, ownerID); err != nil {
		return nil, err
	}

	all := s.currencies.All()
	if err := s.ledger.EnsureAll(ctx, ownerID, all); err != nil {
		return nil, s.mapLedgerError("initialize balances", err)
	}

	records, err := s.ledger.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("list balances: %w", err))
	}

	byCurrency := make(map[domain.Currency]domain.BalanceRecord, len(records))
	for _, rec := range records {
		byCurrency[rec.Currency] = rec
	}

	out := make([]domain.BalanceRecord, 0, len(all))
	for _, c := range all {
		rec, ok := byCurrency[c]
		if !ok {
			rec = domain.ZeroBalance(ownerID, c)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Deposit adds a positive amount to the owner's balance.
func (s *LedgerServiceImpl) Deposit(ctx context.Context, ownerID uuid.UUID, currency string, amount decimal.Decimal) (*domain.BalanceRecord, error) {
	c, err := s.validateMutation(ctx, ownerID, currency, amount)
	if err != nil {
		return nil, err
	}

	rec, err := s.ledger.Update(ctx, ownerID, c, func(current decimal.Decimal) (decimal.Decimal, error) {
		next := current.Add(amount)
		if !domain.ValidAmountRange(next) {
			return current, apperror.ErrInvalidAmount()
		}
		return next, nil
	})
	if err != nil {
		return nil, s.mapLedgerError("deposit", err)
	}

	s.log.Info().
		Str("identity_id", ownerID.String()).
		Str("currency", string(c)).
		Str("amount", amount.String()).
		Msg("deposit applied")

	return rec, nil
}

// Withdraw subtracts a positive amount from the owner's balance. The balance
// is left unchanged when it does not cover the amount.
func (s *LedgerServiceImpl) Withdraw(ctx context.Context, ownerID uuid.UUID, currency string, amount decimal.Decimal) (*domain.BalanceRecord, error) {
	c, err := s.validateMutation(ctx, ownerID, currency, amount)
	if err != nil {
		return nil, err
	}

	rec, err := s.ledger.Update(ctx, ownerID, c, func(current decimal.Decimal) (decimal.Decimal, error) {
		if current.LessThan(amount) {
			return current, apperror.ErrInsufficientFunds()
		}
		return current.Sub(amount), nil
	})
	if err != nil {
		mapped := s.mapLedgerError("withdraw", err)
		if errors.Is(mapped, apperror.ErrInsufficientFunds()) {
			s.log.Info().
				Str("identity_id", ownerID.String()).
				Str("currency", string(c)).
				Str("amount", amount.String()).
				Msg("withdrawal rejected: insufficient funds")
		}
		return nil, mapped
	}

	s.log.Info().
		Str("identity_id", ownerID.String()).
		Str("currency", string(c)).
		Str("amount", amount.String()).
		Msg("withdrawal applied")

	return rec, nil
}

func (s *LedgerServiceImpl) validateMutation(ctx context.Context, ownerID uuid.UUID, currency string, amount decimal.Decimal) (domain.Currency, error) {
	if !amount.IsPositive() || !domain.ValidAmount(amount) {
		return "", apperror.ErrInvalidAmount()
	}
	c, err := s.parseCurrency(currency)
	if err != nil {
		return "", err
	}
	if err := s.ensureOwner(ctx, ownerID); err != nil {
		return "", err
	}
	return c, nil
}

func (s *LedgerServiceImpl) parseCurrency(code string) (domain.Currency, error) {
	c, ok := s.currencies.Parse(code)
	if !ok {
		return "", apperror.ErrInvalidCurrency(code)
	}
	return c, nil
}

func (s *LedgerServiceImpl) ensureOwner(ctx context.Context, ownerID uuid.UUID) error {
	identity, err := s.identities.GetByID(ctx, ownerID)
	if err != nil {
		return apperror.Unavailable(fmt.Errorf("get identity: %w", err))
	}
	if identity == nil {
		return apperror.ErrNotFound("account")
	}
	return nil
}

func (s *LedgerServiceImpl) mapLedgerError(op string, err error) error {
	var appErr *apperror.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ports.ErrAmountOutOfRange):
		return apperror.ErrInvalidAmount()
	case errors.Is(err, ports.ErrNegativeBalance):
		return apperror.ErrInsufficientFunds()
	case errors.Is(err, ports.ErrRecordNotFound):
		return apperror.ErrNotFound("account")
	default:
		return apperror.Unavailable(fmt.Errorf("%s: %w", op, err))
	}
}
