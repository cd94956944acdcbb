package handler

import (
	"exchange-core/internal/adapter/http/dto"
	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"
	"exchange-core/pkg/apperror"
	"exchange-core/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles registration and login.
type AuthHandler struct {
	accounts ports.AccountService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts ports.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Register handles POST /api/v1/auth/register. Self-registration always
// creates a USER.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	identity, err := h.accounts.Register(c.Request.Context(), ports.RegisterRequest{
		Identifier: req.Identifier,
		Password:   req.Password,
		Role:       domain.RoleUser,
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

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	token, err := h.accounts.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.LoginResponse{
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt.Unix(),
	})
}
