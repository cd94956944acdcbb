package handler

import (
	"exchange-core/internal/adapter/http/middleware"
	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Accounts       ports.AccountService
	Ledger         ports.LedgerService
	RateLimitStore middleware.RateLimitStore // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
// The gin mode is left to the caller.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := deps.RateLimitRules
	if rules == nil {
		rules = middleware.DefaultRateLimitRules()
	}
	noop := func(c *gin.Context) { c.Next() }
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return noop
		}
		rule, ok := rules[group]
		if !ok {
			return noop
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	authHandler := NewAuthHandler(deps.Accounts)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	jwtAuth := middleware.JWTAuth(deps.Accounts, deps.Logger)

	accountHandler := NewAccountHandler(deps.Accounts)
	me := v1.Group("/accounts/me", jwtAuth, rl("account"))
	{
		me.GET("", accountHandler.Me)
		me.PUT("/password", accountHandler.ChangePassword)
		me.PUT("/username", accountHandler.ChangeUsername)
		me.DELETE("", accountHandler.Delete)
	}

	adminHandler := NewAdminHandler(deps.Accounts)
	admin := v1.Group("/admin", jwtAuth, middleware.RequireRole(domain.RoleAdmin), rl("admin"))
	{
		admin.POST("/accounts", adminHandler.CreateAdmin)
		admin.POST("/accounts/:identifier/ban", adminHandler.Ban)
	}

	balanceHandler := NewBalanceHandler(deps.Ledger)
	v1.GET("/currencies", rl("balances"), balanceHandler.Currencies)
	balances := v1.Group("/balances", jwtAuth)
	{
		balances.GET("", rl("balances"), balanceHandler.List)
		balances.GET("/:currency", rl("balances"), balanceHandler.Get)
		balances.POST("/deposit", rl("balances_move"), balanceHandler.Deposit)
		balances.POST("/withdraw", rl("balances_move"), balanceHandler.Withdraw)
	}

	return r
}
