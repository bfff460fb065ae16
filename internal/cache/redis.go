package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard/internal/config"
	"taskboard/pkg/logger"
)

const keyPrefix = "tasks:user:"

var (
	client *redis.Client
	once   sync.Once
)

// Client returns the global Redis client (initialized on first use).
func Client(ctx context.Context) *redis.Client {
	once.Do(func() {
		cfg := config.Get()
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error(ctx, "Invalid REDIS_URL", "error", err, "url", cfg.RedisURL)
			return
		}
		opts.PoolSize = cfg.RedisPoolSize
		c := redis.NewClient(opts)
		if err := c.Ping(ctx).Err(); err != nil {
			logger.Error(ctx, "Redis ping failed", "error", err)
			return
		}
		client = c
		logger.Info(ctx, "Redis client initialized", "pool_size", cfg.RedisPoolSize)
	})
	return client
}

// TaskLists caches each user's serialized task list. A nil client turns every
// call into a miss or a no-op so the service falls back to the database.
type TaskLists struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func New(rdb redis.UniversalClient, ttl time.Duration) *TaskLists {
	if c, ok := rdb.(*redis.Client); ok && c == nil {
		rdb = nil
	}
	return &TaskLists{rdb: rdb, ttl: ttl}
}

// Key returns the Redis key of a user's task list.
func Key(userID string) string {
	return keyPrefix + userID
}

func (c *TaskLists) enabled() bool {
	return c != nil && c.rdb != nil
}

// GetRaw returns the cached JSON body. Returns (nil, false) on miss or error.
func (c *TaskLists) GetRaw(ctx context.Context, userID string) ([]byte, bool) {
	if !c.enabled() {
		return nil, false
	}
	b, err := c.rdb.Get(ctx, Key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Debug(ctx, "Redis get tasks failed", "error", err, "user", userID)
		return nil, false
	}
	return b, true
}

// SetRaw stores the JSON body with the configured TTL.
func (c *TaskLists) SetRaw(ctx context.Context, userID string, b []byte) {
	if !c.enabled() {
		return
	}
	if err := c.rdb.Set(ctx, Key(userID), b, c.ttl).Err(); err != nil {
		logger.Debug(ctx, "Redis set tasks failed", "error", err, "user", userID)
	}
}

// SetRawAsync stores in the background with its own deadline so a finished
// request doesn't cancel the write.
func (c *TaskLists) SetRawAsync(userID string, b []byte) {
	if !c.enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.SetRaw(ctx, userID, b)
	}()
}

// Invalidate drops the user's list so the next read goes to the database.
func (c *TaskLists) Invalidate(ctx context.Context, userID string) {
	if !c.enabled() {
		return
	}
	if err := c.rdb.Del(ctx, Key(userID)).Err(); err != nil {
		logger.Debug(ctx, "Redis invalidate tasks failed", "error", err, "user", userID)
	}
}

// Ping reports whether Redis answers.
func (c *TaskLists) Ping(ctx context.Context) error {
	if !c.enabled() {
		return errors.New("redis unavailable")
	}
	return c.rdb.Ping(ctx).Err()
}
