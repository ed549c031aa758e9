package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	platformerrors "voicetask-server-go/internal/platform/errors"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Config for the redis-backed cache.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// Cache is a small JSON value cache in front of the dashboard queries. It is
// optional; when disabled the webapi hits storage directly.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// New connects to redis and verifies the connection with a ping.
func New(cfg Config) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, platformerrors.New(platformerrors.KindConfig, "cache.new",
			"redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindStorage, "cache.new",
			"redis ping failed", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "voicetask:"
	}

	return &Cache{client: client, ttl: ttl, prefix: prefix}, nil
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// SetJSON marshals the value and stores it under the default TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, c.ttl).Err()
}

// GetJSON unmarshals the stored value into dest, returning ErrMiss when the
// key is gone.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Invalidate drops a key immediately.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Close releases the redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
