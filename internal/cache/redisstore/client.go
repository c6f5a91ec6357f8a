// Package redisstore is the Redis backend of the artifact cache.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/overture-extract/internal/core/observability"
)

const scanCount = 500

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

// New connects and pings addr. Payloads are whole GeoJSON files, so the
// pool is smaller and the io timeouts longer than for small values.
func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	c := &Client{rdb: redis.NewClient(ro)}
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}
	return c, nil
}

func timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	observability.ObserveCacheOp(op, err, time.Since(start).Seconds())
	return err
}

// Ping checks the connection; readiness probes call it.
func (c *Client) Ping(ctx context.Context) error {
	err := timed("ping", func() error { return c.rdb.Ping(ctx).Err() })
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// MGet returns the payloads found for keys. Missing keys are absent from
// the map.
func (c *Client) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	var vals []any
	err := timed("mget", func() error {
		var err error
		vals, err = c.rdb.MGet(ctx, keys...).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis MGET %d keys: %w", len(keys), err)
	}

	for i, v := range vals {
		switch t := v.(type) {
		case nil:
		case string:
			out[keys[i]] = []byte(t)
		case []byte:
			out[keys[i]] = t
		default:
			out[keys[i]] = fmt.Append(nil, t)
		}
	}
	return out, nil
}

// MSetWithTTL stores every entry of kv in one pipeline.
func (c *Client) MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl time.Duration) error {
	if len(kv) == 0 {
		return nil
	}
	err := timed("mset", func() error {
		_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			for k, v := range kv {
				p.Set(ctx, k, v, ttl)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("redis MSET %d keys: %w", len(kv), err)
	}
	return nil
}

// DeleteMatching removes every key matching pattern and returns how many
// were deleted. Keys are scanned in batches so a large release does not
// block the server.
func (c *Client) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	err := timed("scan_del", func() error {
		var cursor uint64
		for {
			keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanCount).Result()
			if err != nil {
				return fmt.Errorf("redis SCAN %q: %w", pattern, err)
			}
			if len(keys) > 0 {
				n, err := c.rdb.Unlink(ctx, keys...).Result()
				if err != nil {
					return fmt.Errorf("redis UNLINK %d keys: %w", len(keys), err)
				}
				deleted += int(n)
			}
			if next == 0 {
				return nil
			}
			cursor = next
		}
	})
	return deleted, err
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
