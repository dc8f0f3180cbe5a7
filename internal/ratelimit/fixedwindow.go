package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow counts events per key in fixed periods using ulule/limiter's
// Redis store.
type FixedWindow struct {
	Store limiter.Store
}

// NewFixedWindow builds a FixedWindow on rdb. An empty prefix falls back to
// the package default.
func NewFixedWindow(rdb *redis.Client, prefix string) (FixedWindow, error) {
	if rdb == nil {
		return FixedWindow{}, errors.New("ratelimit: redis client not configured")
	}
	if prefix == "" {
		prefix = defaultPrefix + "fixed"
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix, MaxRetry: 3})
	if err != nil {
		return FixedWindow{}, err
	}
	return FixedWindow{Store: store}, nil
}

// Allow implements Allower.
func (f FixedWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if f.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	res, err := f.Store.Get(ctx, key, limiter.Rate{Period: window, Limit: int64(max)})
	if err != nil {
		return true, max, time.Now().Add(window), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
