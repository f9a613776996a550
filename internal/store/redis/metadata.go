// Package redis is the Redis-backed metadata cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradedash/internal/metacache"
	"tradedash/internal/model"
)

var _ metacache.Cache = (*MetadataCache)(nil)

const (
	defaultKeyPrefix = "meta:"
	scanBatch        = 200
)

// Config configures the metadata cache.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	// KeyPrefix namespaces entries. Default "meta:".
	KeyPrefix string

	// TTL bounds entry lifetime. Zero keeps entries until Clear.
	TTL time.Duration

	// MaxFailures and CoolDown size the circuit breaker. Defaults 5 and 10s.
	MaxFailures int
	CoolDown    time.Duration
}

// MetadataCache is a write-once metadata store in Redis. Every call goes
// through a circuit breaker so an unavailable server fails fast.
type MetadataCache struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	prefix  string
	ttl     time.Duration
}

// New connects and pings the server.
func New(cfg Config) (*MetadataCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, cfg Config) *MetadataCache {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.CoolDown == 0 {
		cfg.CoolDown = 10 * time.Second
	}
	cb := NewCircuitBreaker(cfg.MaxFailures, cfg.CoolDown)
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}
	return &MetadataCache{client: client, breaker: cb, prefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

// Breaker exposes the circuit breaker for metrics wiring.
func (c *MetadataCache) Breaker() *CircuitBreaker { return c.breaker }

// Ping checks connectivity for health reporting. It bypasses the breaker.
func (c *MetadataCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *MetadataCache) Close() error {
	return c.client.Close()
}

func (c *MetadataCache) key(code string) string {
	return c.prefix + code
}

func (c *MetadataCache) Get(ctx context.Context, code string) (model.Metadata, bool, error) {
	var raw []byte
	err := c.breaker.Execute(func() error {
		b, err := c.client.Get(ctx, c.key(code)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		raw = b
		return err
	})
	if err != nil || raw == nil {
		return model.Metadata{}, false, err
	}
	var m model.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return model.Metadata{}, false, fmt.Errorf("redis: decode %s: %w", c.key(code), err)
	}
	return m, true, nil
}

// Put stores m with SETNX; when another writer got there first the existing
// entry is read back and returned.
func (c *MetadataCache) Put(ctx context.Context, m model.Metadata) (model.Metadata, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return model.Metadata{}, err
	}
	var stored bool
	err = c.breaker.Execute(func() error {
		var err error
		stored, err = c.client.SetNX(ctx, c.key(m.StockCode), data, c.ttl).Result()
		return err
	})
	if err != nil {
		return model.Metadata{}, err
	}
	if stored {
		return m, nil
	}
	cur, ok, err := c.Get(ctx, m.StockCode)
	if err != nil || !ok {
		return m, err
	}
	return cur, nil
}

// Clear deletes every key under the prefix.
func (c *MetadataCache) Clear(ctx context.Context) error {
	return c.breaker.Execute(func() error {
		var cursor uint64
		deleted := 0
		for {
			keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", scanBatch).Result()
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if err := c.client.Del(ctx, keys...).Err(); err != nil {
					return err
				}
				deleted += len(keys)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		log.Printf("[redis] cleared %d metadata entries", deleted)
		return nil
	})
}
