// Package cache publishes each symbol's current pattern to Redis for the
// online signal consumer.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tunogya/coil/pkg/model"
)

// Config holds Redis connection configuration
type Config struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"` // Expiry of a cached pattern
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Addr:      "localhost:6379",
		KeyPrefix: "coil:pattern",
		TTL:       7 * 24 * time.Hour,
	}
}

// PatternCache stores the current pattern of every symbol as JSON
type PatternCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewPatternCache wraps a Redis client
func NewPatternCache(client redis.Cmdable, cfg Config) *PatternCache {
	defaults := DefaultConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if cfg.TTL < 0 {
		cfg.TTL = 0
	}
	return &PatternCache{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

// Key returns the Redis key of a symbol
func (c *PatternCache) Key(symbol string) string {
	return c.prefix + ":" + symbol
}

// SetCurrent stores p as the symbol's current pattern; nil clears it
func (c *PatternCache) SetCurrent(ctx context.Context, symbol string, p *model.Pattern) error {
	if p == nil {
		return c.Delete(ctx, symbol)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode pattern: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(symbol), string(data), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache pattern for %s: %w", symbol, err)
	}
	return nil
}

// GetCurrent returns the cached pattern, nil when the symbol has none
func (c *PatternCache) GetCurrent(ctx context.Context, symbol string) (*model.Pattern, error) {
	val, err := c.client.Get(ctx, c.Key(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern for %s: %w", symbol, err)
	}

	var p model.Pattern
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, fmt.Errorf("failed to decode pattern for %s: %w", symbol, err)
	}
	return &p, nil
}

// Delete removes the symbol's cached pattern
func (c *PatternCache) Delete(ctx context.Context, symbol string) error {
	if err := c.client.Del(ctx, c.Key(symbol)).Err(); err != nil {
		return fmt.Errorf("failed to clear pattern for %s: %w", symbol, err)
	}
	return nil
}
