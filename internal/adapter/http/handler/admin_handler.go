package handler

import (
	"exchange-core/internal/adapter/http/dto"
	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"
	"exchange-core/pkg/apperror"
	"exchange-core/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves administrator actions on other accounts.
type AdminHandler struct {
	accounts ports.AccountService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accounts ports.AccountService) *AdminHandler {
	return &AdminHandler{accounts: accounts}
}

// CreateAdmin handles POST /api/v1/admin/accounts, registering another
// administrator.
func (h *AdminHandler) CreateAdmin(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	identity, err := h.accounts.Register(c.Request.Context(), ports.RegisterRequest{
		Identifier: req.Identifier,
		Password:   req.Password,
		Role:       domain.RoleAdmin,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewIdentityResponse(identity))
}

// Ban handles POST /api/v1/admin/accounts/:identifier/ban.
func (h *AdminHandler) Ban(c *gin.Context) {
	identifier := c.Param("identifier")
	if identifier == "" {
		response.Error(c, apperror.Validation("identifier is required"))
		return
	}

	if err := h.accounts.Ban(c.Request.Context(), identifier); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"identifier": identifier, "status": "BANNED"})
}
