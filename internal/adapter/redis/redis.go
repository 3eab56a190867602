// Package redis implements the rate-limit counter store on Redis so limits
// hold across several server instances.
package redis

import (
	"context"
	"fmt"
	"time"

	"fitbite/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "fitbite:ratelimit:"

// CounterStore keeps fixed-window counters in Redis.
type CounterStore struct {
	client *goredis.Client
	now    func() time.Time
}

var _ domain.CounterStore = (*CounterStore)(nil)

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url string) (*CounterStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client *goredis.Client) *CounterStore {
	return &CounterStore{client: client, now: time.Now}
}

// Close closes the client.
func (s *CounterStore) Close() error {
	return s.client.Close()
}

// Ping reports whether Redis is reachable.
func (s *CounterStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Incr increments key and starts its window on first use.
func (s *CounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	key = keyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	left := ttl.Val()
	if left < 0 {
		// New key, or one that lost its expiry.
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		left = window
	}
	return incr.Val(), s.now().Add(left), nil
}
