package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoURL is returned when no redis URL is configured.
var ErrNoURL = errors.New("no redis URL specified")

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client and verifies the connection.
func NewClient(cfg Config) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// Our cached process-wide connection.
var (
	connMu sync.Mutex
	conn   *redis.Client
)

// Connection returns the cached process-wide Redis connection, creating
// it on first use. force rebinds the connection, which lets tests and
// key rotation swap the target. Creating a duplicate client under a race
// would be harmless, but the mutex avoids the wasted object.
func Connection(cfg Config, force bool) (*redis.Client, error) {
	connMu.Lock()
	defer connMu.Unlock()

	if force || conn == nil {
		c, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		conn = c
	}
	return conn, nil
}
