// Package publisher provides two optional Redis side channels: a cache of
// backfill results keyed by (venue, symbol, timeframe) using a ZADD-plus-TTL
// sorted set, and a pub/sub mirror of outbound message-port events for any
// external subscriber. Unthrottled: a single-symbol event stream never
// approaches a rate where client-side throttling would matter.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cryptotick/internal/model"
)

// RedisMirror is the optional Redis side-channel: nil-safe so the worker
// runs without Redis configured at all.
type RedisMirror struct {
	client  *redis.Client
	logger  *zap.Logger
	ttl     time.Duration
	eventCh string
}

// NewRedisMirror wraps an already-connected client. Pass a nil client to
// get a no-op mirror (every method becomes a safe no-op).
func NewRedisMirror(client *redis.Client, ttlHours int, logger *zap.Logger) *RedisMirror {
	return &RedisMirror{
		client:  client,
		logger:  logger.Named("publisher"),
		ttl:     time.Duration(ttlHours) * time.Hour,
		eventCh: "cryptotick:events",
	}
}

func (r *RedisMirror) enabled() bool { return r != nil && r.client != nil }

// CacheBackfill stores a resolved backfill result as a sorted set keyed by
// open time, with a TTL on the history key.
func (r *RedisMirror) CacheBackfill(ctx context.Context, venue string, symbol model.Symbol, tf model.Timeframe, candles []model.Candle) error {
	if !r.enabled() || len(candles) == 0 {
		return nil
	}
	key := cacheKey(venue, symbol, tf)

	pipe := r.client.Pipeline()
	for _, c := range candles {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(c.OpenTimeUTCS), Member: data})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("backfill cache write failed", zap.Error(err))
		return err
	}
	r.client.Expire(ctx, key, r.ttl)
	return nil
}

// CachedBackfill returns a previously cached backfill result, or nil if
// absent or Redis is not configured.
func (r *RedisMirror) CachedBackfill(ctx context.Context, venue string, symbol model.Symbol, tf model.Timeframe) []model.Candle {
	if !r.enabled() {
		return nil
	}
	key := cacheKey(venue, symbol, tf)
	members, err := r.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil || len(members) == 0 {
		return nil
	}
	candles := make([]model.Candle, 0, len(members))
	for _, m := range members {
		var c model.Candle
		if err := json.Unmarshal([]byte(m), &c); err == nil {
			candles = append(candles, c)
		}
	}
	return candles
}

func cacheKey(venue string, symbol model.Symbol, tf model.Timeframe) string {
	return fmt.Sprintf("cryptotick:backfill:%s:%s:%s", venue, strings.ReplaceAll(string(symbol), "/", "-"), tf)
}

// MirrorEvent publishes a raw outbound message-port event envelope onto a
// Redis pub/sub channel, for external observers running alongside the
// worker. Best-effort: errors are logged, never propagated.
func (r *RedisMirror) MirrorEvent(ctx context.Context, envelope []byte) {
	if !r.enabled() {
		return
	}
	if err := r.client.Publish(ctx, r.eventCh, envelope).Err(); err != nil {
		r.logger.Debug("event mirror publish failed", zap.Error(err))
	}
}

// Close releases the underlying Redis client, if any.
func (r *RedisMirror) Close() error {
	if !r.enabled() {
		return nil
	}
	return r.client.Close()
}
