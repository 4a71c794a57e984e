// Package cache provides a Redis-backed cache for embedding vectors.
// Identical text always embeds to the same vector for a given model, so
// entries are keyed by a hash of model and input text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pantrychat/v1/internal/infrastructure/config"
)

// EmbeddingCache implements the EmbeddingCache port over Redis.
type EmbeddingCache struct {
	client *redis.Client
	model  string
	logger *zap.Logger
}

// NewRedisClient creates the Redis client from configuration, or nil when
// no host is configured.
func NewRedisClient(cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if cfg.Host == "" {
		logger.Info("redis not configured, embedding cache disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, embedding cache disabled", zap.Error(err))
		return nil
	}

	return client
}

// NewEmbeddingCache creates an embedding cache. Returns nil when the Redis
// client is nil so callers can fall through to direct embedding calls.
func NewEmbeddingCache(client *redis.Client, model string, logger *zap.Logger) *EmbeddingCache {
	if client == nil {
		return nil
	}
	return &EmbeddingCache{
		client: client,
		model:  model,
		logger: logger.Named("embedding-cache"),
	}
}

// Get looks up a cached embedding vector for the given text.
func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, c.key(text)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten.
		c.logger.Warn("dropping corrupt cache entry", zap.Error(err))
		return nil, false, nil
	}

	return vector, true, nil
}

// Set stores an embedding vector for the given text.
func (c *EmbeddingCache) Set(ctx context.Context, text string, vector []float32, ttl time.Duration) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(text), data, ttl).Err()
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + ":" + text))
	return "embedding:" + hex.EncodeToString(sum[:])
}
