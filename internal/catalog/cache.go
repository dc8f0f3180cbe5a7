package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/pos-terminal/internal/backend"
)

const (
	availabilityKey = "pos:catalog:availability"
	fallbackKey     = availabilityKey + ":last_known"
	// fallbackFactor sets how much longer the last known list outlives the fresh one.
	fallbackFactor = 30
)

// snapshot is the cached availability list.
type snapshot struct {
	Products  []backend.Product `json:"products"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Cache keeps two copies of the availability list: a fresh one that expires
// after ttl and is dropped after every sale, and a last known one kept
// fallbackFactor times longer for when the backend is unreachable.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCache constructs a cache. A nil client or non-positive TTL disables it.
func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// fresh returns the fresh list, if any.
func (c *Cache) fresh(ctx context.Context) (snapshot, bool, error) {
	return c.load(ctx, availabilityKey)
}

// lastKnown returns the fallback list, if any.
func (c *Cache) lastKnown(ctx context.Context) (snapshot, bool, error) {
	return c.load(ctx, fallbackKey)
}

// store saves products as both the fresh and the last known list.
func (c *Cache) store(ctx context.Context, products []backend.Product, now time.Time) error {
	if !c.enabled() {
		return nil
	}
	data, err := json.Marshal(snapshot{Products: products, FetchedAt: now.UTC()})
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, availabilityKey, data, c.ttl)
	pipe.Set(ctx, fallbackKey, data, c.ttl*fallbackFactor)
	_, err = pipe.Exec(ctx)
	return err
}

// expire drops the fresh list; the last known one stays.
func (c *Cache) expire(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Del(ctx, availabilityKey).Err()
}

func (c *Cache) load(ctx context.Context, key string) (snapshot, bool, error) {
	if !c.enabled() {
		return snapshot{}, false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return snapshot{}, false, nil
	}
	if err != nil {
		return snapshot{}, false, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot{}, false, err
	}
	return snap, true, nil
}
