package linkpreview

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/golang/snappy"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get when key is not found
var ErrCacheMiss = errors.New("cache miss")

// Cache stores encoded descriptions. Keys are safe to use with memcached.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// cacheKey returns string of hex representation of sha1 sum of string
// provided.
func cacheKey(s string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(s)))
}

func (e *Engine) cacheGet(ctx context.Context, link string) (*Description, bool) {
	if e.Cache == nil {
		return nil, false
	}
	b, err := e.Cache.Get(ctx, cacheKey(link))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			e.Log.Printf("cache get for %q: %v", link, err)
		}
		return nil, false
	}
	if b, err = snappy.Decode(nil, b); err != nil {
		return nil, false
	}
	d := new(Description)
	if err := json.Unmarshal(b, d); err != nil {
		return nil, false
	}
	return d, true
}

func (e *Engine) cacheSet(ctx context.Context, link string, d *Description) {
	if e.Cache == nil || d.Empty() {
		return
	}
	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := e.Cache.Set(ctx, cacheKey(link), snappy.Encode(nil, b)); err != nil {
		e.Log.Printf("cache update for %q: %v", link, err)
		return
	}
	e.Log.Printf("Cache update for %q", link)
}

type memcacheCache struct {
	client *memcache.Client
}

func (c *memcacheCache) Get(_ context.Context, key string) ([]byte, error) {
	it, err := c.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return it.Value, nil
}

func (c *memcacheCache) Set(_ context.Context, key string, value []byte) error {
	return c.client.Set(&memcache.Item{Key: key, Value: value})
}

type redisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return b, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, redisKeyPrefix+key, value, c.ttl).Err()
}

const redisKeyPrefix = "linkpreview:"
