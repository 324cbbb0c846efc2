package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"dex-trade-stream/internal/domain"
)

// DefaultRedisTTL is how long cached values live.
const DefaultRedisTTL = 5 * time.Minute

// Cache key prefixes, followed by "BASE/QUOTE".
const (
	latestTradePrefix = "trade:latest:"
	oraclePricePrefix = "oracle:latest:"
)

// RedisCache keeps the latest trade and the last oracle price per pair. It
// serves both as a trade sink and as the external cache behind the last-known
// price book. Published trades never touch the oracle price keys.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Name implements ingestion.TradeSink.
func (c *RedisCache) Name() string {
	return "redis"
}

// Publish caches t as the latest trade of its pair.
func (c *RedisCache) Publish(ctx context.Context, t *domain.Trade) error {
	value, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}

	if err := c.client.Set(ctx, latestTradePrefix+t.Pair(), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

// LatestTrade returns the cached latest trade of pair.
func (c *RedisCache) LatestTrade(ctx context.Context, pair string) (*domain.Trade, bool, error) {
	data, err := c.client.Get(ctx, latestTradePrefix+pair).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis GET failed: %w", err)
	}

	var t domain.Trade
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached trade: %w", err)
	}
	return &t, true, nil
}

// SetPrice implements pricefeed.PriceCache.
func (c *RedisCache) SetPrice(ctx context.Context, pair string, price float64) error {
	if err := c.client.Set(ctx, oraclePricePrefix+pair, formatPrice(price), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

// GetPrice implements pricefeed.PriceCache.
func (c *RedisCache) GetPrice(ctx context.Context, pair string) (float64, bool, error) {
	raw, err := c.client.Get(ctx, oraclePricePrefix+pair).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis GET failed: %w", err)
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached price %q: %w", raw, err)
	}
	return price, true, nil
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'g', -1, 64)
}
