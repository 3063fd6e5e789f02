// Package redisx wraps go-redis for the formatted-address result cache.
package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct{ Rdb *redis.Client }

func New(addr string, password string, db int) *Client {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &Client{Rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Rdb.Ping(ctx).Err()
}

func (c *Client) Close() error { return c.Rdb.Close() }

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.Rdb.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, val string, ttl time.Duration) error {
	return c.Rdb.Set(ctx, key, val, ttl).Err()
}

// KV is the subset of Client the result cache needs. Get must return
// redis.Nil for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, val string, ttl time.Duration) error
}

const keyPrefix = "addr:fmt:"

// Entry is a cached format result.
type Entry struct {
	Formatted   string    `json:"formatted"`
	CountryCode string    `json:"country_code"`
	CachedAt    time.Time `json:"cached_at"`
}

// ResultCache stores format results under their request key.
type ResultCache struct {
	kv  KV
	ttl time.Duration
}

func NewResultCache(kv KV, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResultCache{kv: kv, ttl: ttl}
}

// Lookup returns the entry for key. A miss is (Entry{}, false, nil).
func (c *ResultCache) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	val, err := c.kv.Get(ctx, keyPrefix+key)
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return e, true, nil
}

func (c *ResultCache) Store(ctx context.Context, key string, e Entry) error {
	if e.CachedAt.IsZero() {
		e.CachedAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, keyPrefix+key, string(b), c.ttl)
}
