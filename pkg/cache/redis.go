package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"shortlinks/pkg/storage"

	"github.com/redis/go-redis/v9"
)

// LinkCacheInterface is a read-through cache for short links. Get returns
// (nil, nil) on a miss.
type LinkCacheInterface interface {
	Get(ctx context.Context, code string) (*storage.ShortLink, error)
	Set(ctx context.Context, link *storage.ShortLink) error
	Delete(ctx context.Context, code string) error
}

type LinkCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLinkCache(client *redis.Client, ttl time.Duration) *LinkCache {
	return &LinkCache{client: client, ttl: ttl}
}

func key(code string) string { return "link:" + code }

func (c *LinkCache) Get(ctx context.Context, code string) (*storage.ShortLink, error) {
	val, err := c.client.Get(ctx, key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var link storage.ShortLink
	if err := json.Unmarshal(val, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *LinkCache) Set(ctx context.Context, link *storage.ShortLink) error {
	data, err := json.Marshal(link)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(link.Code), data, c.ttl).Err()
}

func (c *LinkCache) Delete(ctx context.Context, code string) error {
	return c.client.Del(ctx, key(code)).Err()
}

// NopCache never hits. Used when Redis is not configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*storage.ShortLink, error) { return nil, nil }
func (NopCache) Set(context.Context, *storage.ShortLink) error          { return nil }
func (NopCache) Delete(context.Context, string) error                   { return nil }
