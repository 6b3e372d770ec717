package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"

	"github.com/triage-risk-engine/internal/domain"
)

// PredictionCache keeps the last good /predict answer per symptom list so a
// tripped breaker can still return a department opinion.
type PredictionCache interface {
	Get(ctx context.Context, symptoms []string) (*domain.RemotePrediction, bool, error)
	Set(ctx context.Context, symptoms []string, prediction *domain.RemotePrediction) error
	Close() error
}

// CacheConfig configures the Redis prediction cache
type CacheConfig struct {
	RedisURL   string        `json:"redis_url"`
	KeyPrefix  string        `json:"key_prefix"`
	PoolSize   int           `json:"pool_size"`
	DefaultTTL time.Duration `json:"default_ttl"`
}

// CachedPrediction represents a cached prediction with metadata
type CachedPrediction struct {
	Data      *domain.RemotePrediction `json:"data"`
	CachedAt  time.Time                `json:"cached_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// RedisPredictionCache stores predictions in Redis.
type RedisPredictionCache struct {
	redis      *redis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewRedisPredictionCache connects to Redis and verifies the connection.
func NewRedisPredictionCache(ctx context.Context, config CacheConfig) (*RedisPredictionCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisPredictionCache(client, config), nil
}

func newRedisPredictionCache(client *redis.Client, config CacheConfig) *RedisPredictionCache {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = time.Hour
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "triage"
	}
	return &RedisPredictionCache{
		redis:      client,
		prefix:     config.KeyPrefix,
		defaultTTL: config.DefaultTTL,
	}
}

// Get retrieves a cached prediction
func (c *RedisPredictionCache) Get(ctx context.Context, symptoms []string) (*domain.RemotePrediction, bool, error) {
	key := predictionKey(c.prefix, symptoms)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get prediction cache: %w", err)
	}

	var cached CachedPrediction
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// Set caches a prediction for the default TTL
func (c *RedisPredictionCache) Set(ctx context.Context, symptoms []string, prediction *domain.RemotePrediction) error {
	now := time.Now()
	cached := CachedPrediction{
		Data:      prediction,
		CachedAt:  now,
		ExpiresAt: now.Add(c.defaultTTL),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction cache data: %w", err)
	}

	return c.redis.Set(ctx, predictionKey(c.prefix, symptoms), jsonData, c.defaultTTL).Err()
}

// Ping checks if Redis connection is alive
func (c *RedisPredictionCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisPredictionCache) Close() error {
	return c.redis.Close()
}

// MemoryPredictionCache is an in-process LRU used when no Redis is configured.
type MemoryPredictionCache struct {
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
}

// NewMemoryPredictionCache creates an LRU holding at most size predictions.
func NewMemoryPredictionCache(size int, ttl time.Duration) (*MemoryPredictionCache, error) {
	if size <= 0 {
		size = 256
	}
	if ttl == 0 {
		ttl = time.Hour
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction cache: %w", err)
	}
	return &MemoryPredictionCache{cache: cache, ttl: ttl, now: time.Now}, nil
}

func (c *MemoryPredictionCache) Get(_ context.Context, symptoms []string) (*domain.RemotePrediction, bool, error) {
	key := predictionKey("memory", symptoms)

	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	cached := value.(CachedPrediction)
	if c.now().After(cached.ExpiresAt) {
		c.cache.Remove(key)
		return nil, false, nil
	}
	return cached.Data, true, nil
}

func (c *MemoryPredictionCache) Set(_ context.Context, symptoms []string, prediction *domain.RemotePrediction) error {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(predictionKey("memory", symptoms), CachedPrediction{
		Data:      prediction,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	return nil
}

func (c *MemoryPredictionCache) Len() int {
	return c.cache.Len()
}

func (c *MemoryPredictionCache) Close() error {
	c.cache.Purge()
	return nil
}

// predictionKey hashes the symptom list exactly as it is sent to the service.
func predictionKey(prefix string, symptoms []string) string {
	hash := sha256.Sum256([]byte(JoinSymptoms(symptoms)))
	return fmt.Sprintf("%s:predict:%x", prefix, hash[:8])
}
