package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

// HealthCheck reports Redis reachability to the /health endpoint.
type HealthCheck struct {
	client goredis.UniversalClient
}

func NewHealthCheck(client goredis.UniversalClient) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return h.client.Ping(ctx).Err()
}

func (h *HealthCheck) Name() string {
	return "redis"
}
