package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

// RedisClient is the subset of the redis client used by the cache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Redis shares resolved lookups across workers.
type Redis struct {
	client    RedisClient
	namespace string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedis wraps client. A zero ttl stores entries without expiry.
func NewRedis(client RedisClient, namespace string, ttl time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	if namespace == "" {
		namespace = "default"
	}
	return &Redis{client: client, namespace: namespace, ttl: ttl, logger: logger.Named("cache")}
}

func (c *Redis) key(term string) string {
	return "enricher:" + c.namespace + ":" + normalize(term)
}

// Get implements enrich.Cache. A missing key is a miss, not an error.
func (c *Redis) Get(ctx context.Context, term string) (enrich.Result, bool, error) {
	raw, err := c.client.Get(ctx, c.key(term)).Bytes()
	if errors.Is(err, redis.Nil) {
		return enrich.Result{}, false, nil
	}
	if err != nil {
		return enrich.Result{}, false, fmt.Errorf("cache: redis get: %w", err)
	}
	var res enrich.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Warn("dropping undecodable cache entry", zap.String("term", term), zap.Error(err))
		return enrich.Result{}, false, nil
	}
	return res, true, nil
}

// Put implements enrich.Cache.
func (c *Redis) Put(ctx context.Context, term string, res enrich.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache: encode result: %w", err)
	}
	if err := c.client.Set(ctx, c.key(term), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}
