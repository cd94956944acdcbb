package handler

import (
	"context"

	"exchange-core/internal/adapter/http/dto"
	"exchange-core/internal/adapter/http/middleware"
	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"
	"exchange-core/pkg/apperror"
	"exchange-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceHandler serves the authenticated identity's balances.
type BalanceHandler struct {
	ledger ports.LedgerService
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(ledger ports.LedgerService) *BalanceHandler {
	return &BalanceHandler{ledger: ledger}
}

// Currencies handles GET /api/v1/currencies.
func (h *BalanceHandler) Currencies(c *gin.Context) {
	response.OK(c, dto.NewCurrenciesResponse(h.ledger.Currencies()))
}

// List handles GET /api/v1/balances.
func (h *BalanceHandler) List(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	records, err := h.ledger.GetAllBalances(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewBalanceList(records))
}

// Get handles GET /api/v1/balances/:currency.
func (h *BalanceHandler) Get(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	rec, err := h.ledger.GetBalance(c.Request.Context(), owner, c.Param("currency"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewBalanceResponse(*rec))
}

// Deposit handles POST /api/v1/balances/deposit.
func (h *BalanceHandler) Deposit(c *gin.Context) {
	h.mutate(c, h.ledger.Deposit)
}

// Withdraw handles POST /api/v1/balances/withdraw.
func (h *BalanceHandler) Withdraw(c *gin.Context) {
	h.mutate(c, h.ledger.Withdraw)
}

type balanceMutation func(ctx context.Context, owner uuid.UUID, currency string, amount decimal.Decimal) (*domain.BalanceRecord, error)

func (h *BalanceHandler) mutate(c *gin.Context, apply balanceMutation) {
	var req dto.BalanceMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	owner, ok := ownerID(c)
	if !ok {
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	rec, err := apply(c.Request.Context(), owner, req.Currency, amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewBalanceResponse(*rec))
}

func ownerID(c *gin.Context) (uuid.UUID, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, apperror.ErrTokenInvalid())
		return uuid.Nil, false
	}
	return claims.Subject, true
}
