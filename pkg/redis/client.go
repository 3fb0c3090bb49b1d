// Package redis builds and health-checks the single shared Redis
// connection the worker's optional backfill cache and event mirror use.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ClientConfig holds the connection parameters this domain actually uses.
type ClientConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MaxRetries   int
	RetryBackoff time.Duration
}

// Dial connects to Redis and confirms reachability with a ping. Returns a
// plain *redis.Client: callers needing domain-specific behavior (the
// backfill cache, the event mirror) wrap it themselves rather than going
// through an intermediary abstraction with its own method surface.
func Dial(ctx context.Context, cfg ClientConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	logger.Info("redis client connected",
		zap.String("addr", rdb.Options().Addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize))
	return rdb, nil
}

// Stats reports pool statistics for the debug/health surface.
func Stats(rdb *redis.Client) map[string]interface{} {
	s := rdb.PoolStats()
	return map[string]interface{}{
		"hits":        s.Hits,
		"misses":      s.Misses,
		"timeouts":    s.Timeouts,
		"total_conns": s.TotalConns,
		"idle_conns":  s.IdleConns,
		"stale_conns": s.StaleConns,
	}
}
