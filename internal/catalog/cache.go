package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is a read-through Redis cache for single-product lookups. Catalog
// reads are the hot path under the pricing resolver; stock counters cached
// here are advisory only, the reservation service always re-reads them under
// a row lock.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func productKey(id uuid.UUID) string {
	return fmt.Sprintf("catalog:product:%s", id)
}

// FetchProduct loads a cached product or populates it using the loader.
func (c *Cache) FetchProduct(ctx context.Context, id uuid.UUID, loader func(context.Context) (Product, error)) (Product, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	key := productKey(id)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var p Product
		if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
			return p, nil
		}
		// Corrupt entry; fall through and rebuild it.
	} else if !errors.Is(err, redis.Nil) {
		return loader(ctx)
	}

	p, err := loader(ctx)
	if err != nil {
		return Product{}, err
	}
	if raw, err := json.Marshal(p); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return p, nil
}

// Invalidate drops the cached entry after a catalog write.
func (c *Cache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, productKey(id)).Err()
}
