// Package cache provides an optional Redis-backed cache of validated
// recommendations. The prompt builder is deterministic, so the prompt text is
// a stable cache key: identical evidence produces an identical prompt, which
// lets repeated diagnoses of an unchanged pod skip the generation service.
// Cache failures degrade to a normal service call, never to a request error.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/codereliant/pod-doctor/internal/models"
)

const (
	keyPrefix  = "poddoctor:rec:"
	DefaultTTL = 5 * time.Minute
)

// Cache stores recommendations in Redis keyed by prompt hash.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a cache from a Redis URL.
func New(redisURL string, ttl time.Duration, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		client: redis.NewClient(opt),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Key derives the cache key for a prompt.
func Key(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached recommendation for a prompt, if present.
func (c *Cache) Get(ctx context.Context, prompt string) (models.RecommendationResponse, bool) {
	raw, err := c.client.Get(ctx, Key(prompt)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("recommendation cache read failed", zap.Error(err))
		}
		return models.RecommendationResponse{}, false
	}

	var rec models.RecommendationResponse
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		c.logger.Warn("recommendation cache entry corrupt, ignoring", zap.Error(err))
		return models.RecommendationResponse{}, false
	}
	return rec, true
}

// Put stores a recommendation with the configured TTL.
func (c *Cache) Put(ctx context.Context, prompt string, rec models.RecommendationResponse) {
	raw, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("failed to encode recommendation for cache", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, Key(prompt), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("recommendation cache write failed", zap.Error(err))
	}
}

// Ping performs a health check on the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
