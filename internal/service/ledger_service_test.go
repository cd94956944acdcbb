package service

import (
	"context"
	"errors"
	"testing"

	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"
	"exchange-core/internal/core/ports/mocks"
	"exchange-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupLedgerService(t *testing.T) (*LedgerServiceImpl, *mocks.MockIdentityRepository, *mocks.MockBalanceLedger) {
	ctrl := gomock.NewController(t)
	identities := mocks.NewMockIdentityRepository(ctrl)
	ledger := mocks.NewMockBalanceLedger(ctrl)
	svc := NewLedgerService(identities, ledger, domain.DefaultCurrencySet(), zerolog.Nop())
	return svc, identities, ledger
}

// applyBalance makes a mocked ledger Update run fn against current.
func applyBalance(owner uuid.UUID, currency domain.Currency, current string) func(context.Context, uuid.UUID, domain.Currency, ports.BalanceMutation) (*domain.BalanceRecord, error) {
	return func(_ context.Context, _ uuid.UUID, _ domain.Currency, fn ports.BalanceMutation) (*domain.BalanceRecord, error) {
		next, err := fn(decimal.RequireFromString(current))
		if err != nil {
			return nil, err
		}
		return &domain.BalanceRecord{OwnerID: owner, Currency: currency, Amount: next}, nil
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLedgerService_Currencies(t *testing.T) {
	svc, _, _ := setupLedgerService(t)
	assert.Equal(t, domain.DefaultCurrencies, svc.Currencies())
}

func TestLedgerService_GetBalance_Missing(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Get(ctx, owner, domain.CurrencyBTC).Return(nil, nil)

	rec, err := svc.GetBalance(ctx, owner, "btc")
	require.NoError(t, err)
	assert.True(t, rec.Amount.IsZero())
	assert.Equal(t, domain.CurrencyBTC, rec.Currency)
}

func TestLedgerService_GetBalance_Existing(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()
	stored := &domain.BalanceRecord{OwnerID: owner, Currency: domain.CurrencyUSD, Amount: dec("12.5")}

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Get(ctx, owner, domain.CurrencyUSD).Return(stored, nil)

	rec, err := svc.GetBalance(ctx, owner, "USD")
	require.NoError(t, err)
	assert.Equal(t, stored, rec)
}

func TestLedgerService_GetBalance_InvalidCurrency(t *testing.T) {
	svc, _, _ := setupLedgerService(t)

	_, err := svc.GetBalance(context.Background(), uuid.New(), "DOGE")
	assert.ErrorIs(t, err, apperror.ErrInvalidCurrency(""))
}

func TestLedgerService_GetBalance_UnknownOwner(t *testing.T) {
	svc, identities, _ := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(nil, nil)

	_, err := svc.GetBalance(ctx, owner, "USD")
	assert.ErrorIs(t, err, apperror.ErrNotFound(""))
}

func TestLedgerService_GetBalance_StorageFailure(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Get(ctx, owner, domain.CurrencyUSD).Return(nil, errors.New("timeout"))

	_, err := svc.GetBalance(ctx, owner, "USD")
	assert.Equal(t, apperror.CodeUnavailable, apperror.CodeOf(err))
}

func TestLedgerService_GetAllBalances_OrderedBySet(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().EnsureAll(ctx, owner, domain.DefaultCurrencies).Return(nil)
	ledger.EXPECT().ListByOwner(ctx, owner).Return([]domain.BalanceRecord{
		{OwnerID: owner, Currency: domain.CurrencyBNB, Amount: dec("3")},
		{OwnerID: owner, Currency: domain.CurrencyUSD, Amount: dec("1")},
		{OwnerID: owner, Currency: domain.CurrencyETH, Amount: dec("0")},
		{OwnerID: owner, Currency: domain.CurrencyBTC, Amount: dec("0")},
		{OwnerID: owner, Currency: domain.CurrencyUSDT, Amount: dec("0")},
		{OwnerID: owner, Currency: "XRP", Amount: dec("9")}, // no longer configured
	}, nil)

	recs, err := svc.GetAllBalances(ctx, owner)
	require.NoError(t, err)
	require.Len(t, recs, 5)

	for i, c := range domain.DefaultCurrencies {
		assert.Equal(t, c, recs[i].Currency)
	}
	assert.True(t, recs[0].Amount.Equal(dec("1")))
	assert.True(t, recs[4].Amount.Equal(dec("3")))
}

func TestLedgerService_GetAllBalances_FillsGaps(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().EnsureAll(ctx, owner, gomock.Any()).Return(nil)
	ledger.EXPECT().ListByOwner(ctx, owner).Return(nil, nil)

	recs, err := svc.GetAllBalances(ctx, owner)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	for _, r := range recs {
		assert.True(t, r.Amount.IsZero())
	}
}

func TestLedgerService_GetAllBalances_EnsureFailure(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().EnsureAll(ctx, owner, gomock.Any()).Return(errors.New("deadlock"))

	_, err := svc.GetAllBalances(ctx, owner)
	assert.Equal(t, apperror.CodeUnavailable, apperror.CodeOf(err))
}

func TestLedgerService_Deposit(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Update(ctx, owner, domain.CurrencyUSD, gomock.Any()).DoAndReturn(applyBalance(owner, domain.CurrencyUSD, "70.5"))

	rec, err := svc.Deposit(ctx, owner, "usd", dec("29.5"))
	require.NoError(t, err)
	assert.True(t, rec.Amount.Equal(dec("100")), "got %s", rec.Amount)
}

func TestLedgerService_InvalidAmount(t *testing.T) {
	svc, _, _ := setupLedgerService(t)
	ctx := context.Background()

	for _, amount := range []string{"0", "-1", "0.0000000000000000001", "100000000000000000000", "1e20000000"} {
		_, err := svc.Deposit(ctx, uuid.New(), "USD", dec(amount))
		assert.ErrorIs(t, err, apperror.ErrInvalidAmount(), "deposit %s", amount)

		_, err = svc.Withdraw(ctx, uuid.New(), "USD", dec(amount))
		assert.ErrorIs(t, err, apperror.ErrInvalidAmount(), "withdraw %s", amount)
	}
}

func TestLedgerService_Deposit_BalanceOverflow(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Update(ctx, owner, domain.CurrencyUSD, gomock.Any()).
		DoAndReturn(applyBalance(owner, domain.CurrencyUSD, "99999999999999999999"))

	_, err := svc.Deposit(ctx, owner, "USD", dec("1"))
	assert.ErrorIs(t, err, apperror.ErrInvalidAmount())
}

func TestLedgerService_Deposit_StorageOutOfRange(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Update(ctx, owner, domain.CurrencyBTC, gomock.Any()).Return(nil, ports.ErrAmountOutOfRange)

	_, err := svc.Deposit(ctx, owner, "BTC", dec("1"))
	assert.ErrorIs(t, err, apperror.ErrInvalidAmount())
}

func TestLedgerService_Deposit_InvalidCurrency(t *testing.T) {
	svc, _, _ := setupLedgerService(t)

	_, err := svc.Deposit(context.Background(), uuid.New(), "XYZ", dec("1"))
	assert.ErrorIs(t, err, apperror.ErrInvalidCurrency(""))
}

func TestLedgerService_Deposit_UnknownOwner(t *testing.T) {
	svc, identities, _ := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(nil, nil)

	_, err := svc.Deposit(ctx, owner, "USD", dec("1"))
	assert.ErrorIs(t, err, apperror.ErrNotFound(""))
}

func TestLedgerService_Withdraw(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Update(ctx, owner, domain.CurrencyETH, gomock.Any()).DoAndReturn(applyBalance(owner, domain.CurrencyETH, "100"))

	rec, err := svc.Withdraw(ctx, owner, "ETH", dec("30"))
	require.NoError(t, err)
	assert.True(t, rec.Amount.Equal(dec("70")))
}

func TestLedgerService_Withdraw_ExactBalance(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Update(ctx, owner, domain.CurrencyUSD, gomock.Any()).DoAndReturn(applyBalance(owner, domain.CurrencyUSD, "0.1"))

	rec, err := svc.Withdraw(ctx, owner, "USD", dec("0.1"))
	require.NoError(t, err)
	assert.True(t, rec.Amount.IsZero())
}

func TestLedgerService_Withdraw_InsufficientFunds(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Update(ctx, owner, domain.CurrencyUSD, gomock.Any()).DoAndReturn(applyBalance(owner, domain.CurrencyUSD, "70"))

	_, err := svc.Withdraw(ctx, owner, "USD", dec("100"))
	assert.ErrorIs(t, err, apperror.ErrInsufficientFunds())
}

func TestLedgerService_Withdraw_StorageCheckViolation(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Update(ctx, owner, domain.CurrencyUSD, gomock.Any()).Return(nil, ports.ErrNegativeBalance)

	_, err := svc.Withdraw(ctx, owner, "USD", dec("1"))
	assert.ErrorIs(t, err, apperror.ErrInsufficientFunds())
}

func TestLedgerService_Deposit_StorageFailure(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Update(ctx, owner, domain.CurrencyUSD, gomock.Any()).Return(nil, errors.New("connection refused"))

	_, err := svc.Deposit(ctx, owner, "USD", dec("1"))
	assert.Equal(t, apperror.CodeUnavailable, apperror.CodeOf(err))
}

func TestLedgerService_OwnerDeletedDuringUpdate(t *testing.T) {
	svc, identities, ledger := setupLedgerService(t)
	ctx := context.Background()
	owner := uuid.New()

	identities.EXPECT().GetByID(ctx, owner).Return(&domain.Identity{ID: owner}, nil)
	ledger.EXPECT().Update(ctx, owner, domain.CurrencyUSD, gomock.Any()).Return(nil, ports.ErrRecordNotFound)

	_, err := svc.Deposit(ctx, owner, "USD", dec("1"))
	assert.ErrorIs(t, err, apperror.ErrNotFound(""))
}
