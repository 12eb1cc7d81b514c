// Package cache provides an optional Redis-backed cache for task listings.
//
// The cache is a read-through layer in front of storage.ListTasks: listings
// are keyed by owner, status filter, and page, and the whole owner keyspace
// is invalidated on any write. When no Redis address is configured the
// constructor returns a nil cache, and all methods on a nil *TaskCache are
// safe no-ops.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/piwi3910/taskforge/internal/config"
	"github.com/piwi3910/taskforge/internal/models"
	"github.com/piwi3910/taskforge/internal/observability"
)

const (
	// taskListKeyPrefix namespaces task listing keys.
	taskListKeyPrefix = "tasks:user:"

	// cacheType is the label value reported on hit/miss counters.
	cacheType = "task_list"
)

// defaultTTL bounds staleness when no TTL is configured.
const defaultTTL = 5 * time.Minute

// TaskCache caches task listings in Redis.
type TaskCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// New connects to Redis and returns the cache. Returns (nil, nil) when no
// address is configured; a nil cache is valid and disables caching.
func New(ctx context.Context, cfg config.RedisConfig, metrics *observability.Metrics) (*TaskCache, error) {
	if cfg.Address == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	if metrics == nil {
		metrics = observability.NewMetrics(config.MetricsConfig{})
	}

	return &TaskCache{
		client:  client,
		ttl:     ttl,
		metrics: metrics,
	}, nil
}

// listKey builds the cache key for one page of a user's task listing.
func listKey(userID string, status models.TaskStatus, skip, limit int) string {
	return fmt.Sprintf("%s%s:%s:%d:%d", taskListKeyPrefix, userID, status, skip, limit)
}

// GetTaskList returns a cached listing, or (nil, false) on a miss.
// Every lookup records a hit or miss sample.
func (c *TaskCache) GetTaskList(ctx context.Context, userID string, status models.TaskStatus, skip, limit int) (*models.TaskListResponse, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, listKey(userID, status, skip, limit)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			observability.LoggerFromContext(ctx).Warn("cache lookup failed")
		}
		c.metrics.RecordCacheMiss(cacheType)
		return nil, false
	}

	var resp models.TaskListResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.metrics.RecordCacheMiss(cacheType)
		return nil, false
	}

	c.metrics.RecordCacheHit(cacheType)
	return &resp, true
}

// SetTaskList stores one page of a user's task listing.
// Failures are logged and swallowed; the cache never fails a request.
func (c *TaskCache) SetTaskList(ctx context.Context, userID string, status models.TaskStatus, skip, limit int, resp *models.TaskListResponse) {
	if c == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, listKey(userID, status, skip, limit), data, c.ttl).Err(); err != nil {
		observability.LoggerFromContext(ctx).Warn("cache store failed")
	}
}

// InvalidateUser drops every cached listing for the user.
func (c *TaskCache) InvalidateUser(ctx context.Context, userID string) {
	if c == nil {
		return
	}

	pattern := taskListKeyPrefix + userID + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		observability.LoggerFromContext(ctx).Warn("cache invalidation scan failed")
		return
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			observability.LoggerFromContext(ctx).Warn("cache invalidation failed")
		}
	}
}

// Ping verifies the Redis connection. A nil cache reports healthy.
func (c *TaskCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (c *TaskCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
