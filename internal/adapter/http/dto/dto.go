package dto

import (
	"time"

	"exchange-core/internal/core/domain"
)

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Identifier string  `json:"identifier" binding:"required,min=3,max=100" sanitize:"trim"`
	Password   string  `json:"password" binding:"required,min=8,max=128" sanitize:"-"`
	FirstName  *string `json:"first_name,omitempty" binding:"omitempty,max=100"`
	LastName   *string `json:"last_name,omitempty" binding:"omitempty,max=100"`
	Email      *string `json:"email,omitempty" binding:"omitempty,email,max=254"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required" sanitize:"trim"`
	Password   string `json:"password" binding:"required" sanitize:"-"`
}

// LoginResponse is the response body for a successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// ChangePasswordRequest is the request body for a password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required" sanitize:"-"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=128" sanitize:"-"`
}

// ChangeUsernameRequest is the request body for an identifier change.
type ChangeUsernameRequest struct {
	Identifier string `json:"identifier" binding:"required,min=3,max=100" sanitize:"trim"`
}

// DeleteAccountRequest confirms account deletion with the current password.
type DeleteAccountRequest struct {
	Password string `json:"password" binding:"required" sanitize:"-"`
}

// BalanceMutationRequest is the request body for deposits and withdrawals.
// Amount is a decimal string so it never passes through float64.
type BalanceMutationRequest struct {
	Currency string `json:"currency" binding:"required,currency_code"`
	Amount   string `json:"amount" binding:"required,decimal_amount"`
}

// CurrenciesResponse lists the supported currency codes in ledger order.
type CurrenciesResponse struct {
	Currencies []string `json:"currencies"`
}

// NewCurrenciesResponse builds a CurrenciesResponse.
func NewCurrenciesResponse(currencies []domain.Currency) CurrenciesResponse {
	codes := make([]string, len(currencies))
	for i, c := range currencies {
		codes[i] = string(c)
	}
	return CurrenciesResponse{Currencies: codes}
}

// IdentityResponse is the public view of an identity.
type IdentityResponse struct {
	ID          string  `json:"id"`
	Identifier  string  `json:"identifier"`
	Status      string  `json:"status"`
	Role        string  `json:"role"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	CreatedAt   string  `json:"created_at"`
	LastLoginAt *string `json:"last_login_at,omitempty"`
}

// BalanceResponse is one currency balance.
type BalanceResponse struct {
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// NewIdentityResponse builds the public view of i. The password hash is never included.
func NewIdentityResponse(i *domain.Identity) IdentityResponse {
	resp := IdentityResponse{
		ID:         i.ID.String(),
		Identifier: i.Identifier,
		Status:     string(i.Status),
		Role:       string(i.Role),
		FirstName:  i.FirstName,
		LastName:   i.LastName,
		Email:      i.Email,
		CreatedAt:  i.CreatedAt.UTC().Format(time.RFC3339),
	}
	if i.LastLoginAt != nil {
		s := i.LastLoginAt.UTC().Format(time.RFC3339)
		resp.LastLoginAt = &s
	}
	return resp
}

// NewBalanceResponse renders a balance with its exact decimal amount.
func NewBalanceResponse(b domain.BalanceRecord) BalanceResponse {
	resp := BalanceResponse{
		Currency: string(b.Currency),
		Amount:   b.Amount.String(),
	}
	if !b.UpdatedAt.IsZero() {
		resp.UpdatedAt = b.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// NewBalanceList renders balances in the order given.
func NewBalanceList(records []domain.BalanceRecord) []BalanceResponse {
	out := make([]BalanceResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, NewBalanceResponse(rec))
	}
	return out
}
