package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"
	"exchange-core/pkg/apperror"
	"exchange-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxClaims     = "claims"
	CtxIdentityID = "identity_id"
)

// RequestID tags each request with an ID, reusing a well-formed incoming one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		c.Set(response.CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// JWTAuth authenticates the bearer token through the account service, which
// also enforces revocation. Claims are stored on the context for handlers.
func JWTAuth(accounts ports.AccountService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Abort(c, apperror.ErrTokenInvalid())
			return
		}

		claims, err := accounts.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			if apperror.CodeOf(err) == apperror.CodeUnavailable {
				log.Error().Err(err).Msg("token authentication unavailable")
			}
			response.Abort(c, err)
			return
		}

		c.Set(CtxClaims, claims)
		c.Set(CtxIdentityID, claims.Subject)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireRole rejects requests whose claims do not carry role. Must run after JWTAuth.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Abort(c, apperror.ErrTokenInvalid())
			return
		}
		if claims.Role != role {
			response.Abort(c, apperror.ErrForbidden())
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by JWTAuth.
func ClaimsFrom(c *gin.Context) (*ports.TokenClaims, bool) {
	v, exists := c.Get(CtxClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*ports.TokenClaims)
	return claims, ok && claims != nil
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		if id, ok := c.Get(CtxIdentityID); ok {
			event = event.Str("identity_id", fmt.Sprint(id))
		}
		if id, ok := c.Get(response.CtxRequestID); ok {
			event = event.Str("request_id", fmt.Sprint(id))
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Abort(c, apperror.InternalError(fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}
