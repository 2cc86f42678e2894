package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ardhptr21/myits-lapor/internal/config"
)

// Namespace prefixes every key and stream this service writes.
const Namespace = "lapor"

// Key joins parts under Namespace: Key("ratelimit", "login") is
// "lapor:ratelimit:login".
func Key(parts ...string) string {
	return Namespace + ":" + strings.Join(parts, ":")
}

// NewRedisClient connects and pings. The client backs the rate limiter and
// the cleanup stream, so both fail fast at startup instead of on first use.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
