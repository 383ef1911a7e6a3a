// Package taskqueue dispatches crawl runs to workers over Redis Streams and
// carries the run-scoped progress and cancellation signals the API surfaces.
// One stream holds pending run tasks; progress and cancel flags live in
// per-run keys with a TTL so abandoned runs clean themselves up.
package taskqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// defaultConnectionTimeout bounds the startup ping.
	defaultConnectionTimeout = 2 * time.Second

	// defaultPrefix namespaces every key this package writes.
	defaultPrefix = "sitewatch"

	// defaultMaxStreamLen caps the run stream to prevent unbounded growth.
	defaultMaxStreamLen = 10000

	// signalTTL is how long progress and cancel keys outlive their last write.
	signalTTL = 24 * time.Hour
)

// Config holds Redis connection configuration.
type Config struct {
	Addr     string `mapstructure:"addr"     yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password" json:"-"`
	DB       int    `mapstructure:"db"       yaml:"db"`
	Prefix   string `mapstructure:"prefix"   yaml:"prefix"`
}

// Client wraps a Redis connection with the key layout used by the queue.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient connects to Redis and verifies the connection.
func NewClient(cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectionTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Client{rdb: rdb, prefix: prefix}, nil
}

// NewClientFromRedis wraps an existing Redis client. Used in tests.
func NewClientFromRedis(rdb *redis.Client, prefix string) *Client {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Client{rdb: rdb, prefix: prefix}
}

// streamKey is the stream holding pending run tasks.
func (c *Client) streamKey() string {
	return c.prefix + ":runs"
}

// progressKey holds a run's latest progress report.
func (c *Client) progressKey(runID string) string {
	return c.prefix + ":progress:" + runID
}

// cancelKey flags a run for cancellation.
func (c *Client) cancelKey(runID string) string {
	return c.prefix + ":cancel:" + runID
}

// Ping checks that Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// createGroup creates the consumer group if it does not exist yet.
func (c *Client) createGroup(ctx context.Context, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.streamKey(), group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}
