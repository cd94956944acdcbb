package handler

import (
	"exchange-core/internal/adapter/http/dto"
	"exchange-core/internal/adapter/http/middleware"
	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"
	"exchange-core/pkg/apperror"
	"exchange-core/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccountHandler serves the authenticated identity's own account.
type AccountHandler struct {
	accounts ports.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts ports.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Me handles GET /api/v1/accounts/me.
func (h *AccountHandler) Me(c *gin.Context) {
	identity, ok := h.current(c)
	if !ok {
		return
	}
	response.OK(c, dto.NewIdentityResponse(identity))
}

// ChangePassword handles PUT /api/v1/accounts/me/password.
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	identity, ok := h.current(c)
	if !ok {
		return
	}

	if err := h.accounts.ChangePassword(c.Request.Context(), identity.Identifier, req.CurrentPassword, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"status": "password changed"})
}

// ChangeUsername handles PUT /api/v1/accounts/me/username.
func (h *AccountHandler) ChangeUsername(c *gin.Context) {
	var req dto.ChangeUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	identity, ok := h.current(c)
	if !ok {
		return
	}

	updated, err := h.accounts.ChangeUsername(c.Request.Context(), identity.Identifier, req.Identifier)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewIdentityResponse(updated))
}

// Delete handles DELETE /api/v1/accounts/me. The password must be resupplied.
func (h *AccountHandler) Delete(c *gin.Context) {
	var req dto.DeleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	identity, ok := h.current(c)
	if !ok {
		return
	}

	if err := h.accounts.DeleteAccount(c.Request.Context(), identity.Identifier, req.Password); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"status": "account deleted"})
}

// current loads the identity behind the token. The identifier claim may be
// stale after a rename, so the subject ID is authoritative.
func (h *AccountHandler) current(c *gin.Context) (*domain.Identity, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, apperror.ErrTokenInvalid())
		return nil, false
	}

	identity, err := h.accounts.GetIdentity(c.Request.Context(), claims.Subject)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return identity, true
}
