package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// advanceCutoff keeps the larger of the stored and the new cut-off so a
// delayed write never reopens tokens revoked by a later one.
var advanceCutoff = goredis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local new = tonumber(ARGV[1])
if new > cur then
	redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
else
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return 1
`)

// RevocationStore implements ports.RevocationStore. Each identity has at most
// one key holding the unix second before which its tokens are rejected.
// Keys expire after ttl, which must be at least the token lifetime.
type RevocationStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRevocationStore creates a new Redis-backed revocation store.
func NewRevocationStore(client goredis.UniversalClient, ttl time.Duration) *RevocationStore {
	if ttl < time.Second {
		ttl = time.Second
	}
	return &RevocationStore{
		client: client,
		prefix: "revoked:",
		ttl:    ttl,
	}
}

// RevokeBefore records cutoff for subject.
func (s *RevocationStore) RevokeBefore(ctx context.Context, subject uuid.UUID, cutoff time.Time) error {
	err := advanceCutoff.Run(ctx, s.client,
		[]string{s.prefix + subject.String()},
		cutoff.Unix(), int64(s.ttl/time.Second),
	).Err()
	if err != nil {
		return fmt.Errorf("redis revoke: %w", err)
	}
	return nil
}

// RevokedBefore returns the recorded cut-off, if any.
func (s *RevocationStore) RevokedBefore(ctx context.Context, subject uuid.UUID) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+subject.String()).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("redis revocation get: %w", err)
	}

	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis revocation value %q: %w", raw, err)
	}
	return time.Unix(secs, 0).UTC(), true, nil
}
