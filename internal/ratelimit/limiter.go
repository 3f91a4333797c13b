package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Limiter counts events per key against a fixed rate.
type Limiter struct {
	l *limiter.Limiter
}

// New builds a Limiter from a formatted rate such as "5-M" (five per minute).
func New(store limiter.Store, rate string) (*Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	return &Limiter{l: limiter.New(store, r)}, nil
}

// NewRedisStore returns a limiter store shared across API replicas.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// Allow registers an event for key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (allowed bool, limit, remaining int, reset time.Time, err error) {
	if l == nil || l.l == nil {
		return true, 0, 0, time.Now(), nil
	}
	c, err := l.l.Get(ctx, key)
	if err != nil {
		return false, 0, 0, time.Now(), err
	}
	return !c.Reached, int(c.Limit), int(c.Remaining), time.Unix(c.Reset, 0), nil
}
