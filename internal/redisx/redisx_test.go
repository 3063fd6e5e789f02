package redisx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemKV() *memKV {
	return &memKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key, val string, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = val
	m.ttls[key] = ttl
	return nil
}

func TestResultCache_RoundTrip(t *testing.T) {
	kv := newMemKV()
	c := NewResultCache(kv, time.Hour)
	ctx := context.Background()

	_, ok, err := c.Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Store(ctx, "abc", Entry{Formatted: "1 Main St\n", CountryCode: "US"}))
	assert.Equal(t, time.Hour, kv.ttls["addr:fmt:abc"])

	e, ok, err := c.Lookup(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1 Main St\n", e.Formatted)
	assert.Equal(t, "US", e.CountryCode)
	assert.False(t, e.CachedAt.IsZero())
}

func TestResultCache_Errors(t *testing.T) {
	kv := newMemKV()
	c := NewResultCache(kv, 0)
	ctx := context.Background()

	kv.data["addr:fmt:bad"] = "{not json"
	_, _, err := c.Lookup(ctx, "bad")
	require.Error(t, err)

	kv.err = errors.New("connection refused")
	_, ok, err := c.Lookup(ctx, "abc")
	assert.False(t, ok)
	assert.EqualError(t, err, "connection refused")
}
