// services/replay_guard.go
package services

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// ReplayGuard remembers references whose charge was already applied so
// provider retries short-circuit before opening a DB transaction.
// The database stays authoritative; a guard miss only costs a lookup.
type ReplayGuard interface {
	Seen(ctx context.Context, reference string) (bool, error)
	Remember(ctx context.Context, reference string) error
}

// NopReplayGuard never remembers anything.
type NopReplayGuard struct{}

func (NopReplayGuard) Seen(context.Context, string) (bool, error) { return false, nil }
func (NopReplayGuard) Remember(context.Context, string) error     { return nil }

// RedisReplayGuard keeps completed references in Redis for TTL.
type RedisReplayGuard struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisReplayGuard(redisURL string, ttl time.Duration) (*RedisReplayGuard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisReplayGuard{Client: redis.NewClient(opts), TTL: ttl}, nil
}

func replayKey(reference string) string {
	return "paystack:completed:" + reference
}

func (g *RedisReplayGuard) Seen(ctx context.Context, reference string) (bool, error) {
	n, err := g.Client.Exists(ctx, replayKey(reference)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *RedisReplayGuard) Remember(ctx context.Context, reference string) error {
	return g.Client.SetNX(ctx, replayKey(reference), time.Now().UTC().Format(time.RFC3339), g.TTL).Err()
}

// Ping checks connectivity at start-up.
func (g *RedisReplayGuard) Ping(ctx context.Context) error {
	return g.Client.Ping(ctx).Err()
}
