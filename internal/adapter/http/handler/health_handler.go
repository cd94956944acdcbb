package handler

import (
	"context"
	"net/http"
	"time"

	"exchange-core/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// healthCheckTimeout bounds each dependency ping.
const healthCheckTimeout = 2 * time.Second

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthCheck handles GET /health. Any failing dependency turns the
// response into 503 "degraded".
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		deps := make(map[string]dependencyStatus, len(checkers))
		status, code := "healthy", http.StatusOK

		for _, checker := range checkers {
			if err := ping(c.Request.Context(), checker); err != nil {
				deps[checker.Name()] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			deps[checker.Name()] = dependencyStatus{Status: "healthy"}
		}

		c.JSON(code, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}

func ping(ctx context.Context, checker ports.HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return checker.Ping(ctx)
}
