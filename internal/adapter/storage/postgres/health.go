package postgres

import (
	"context"
	"fmt"
	"time"
)

const defaultHealthTimeout = 2 * time.Second

// HealthCheck implements ports.HealthChecker for PostgreSQL.
type HealthCheck struct {
	pool    Pool
	timeout time.Duration
}

// NewHealthCheck creates a PostgreSQL health checker whose probe is bounded
// by a short timeout so /health never hangs on a stuck pool.
func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool, timeout: defaultHealthTimeout}
}

// Ping runs a trivial query and checks its result.
func (h *HealthCheck) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var one int
	if err := h.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("postgres ping: unexpected result %d", one)
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
