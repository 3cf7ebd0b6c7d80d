// Package ratelimit provides a Redis fixed-window counter used to bound how
// often a single client can request allocation plans.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	// Window keys are bucketed at second granularity; anything finer would
	// divide by zero in Allow.
	if window < time.Second {
		window = time.Second
	}
	return &Limiter{client: client, limit: limit, window: window}
}

// Allow increments the client's counter for the current window and reports
// whether the request is within the limit. The counter key expires with the
// window, so idle clients carry no state.
func (l *Limiter) Allow(ctx context.Context, clientID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%d", clientID, time.Now().Unix()/int64(l.window.Seconds()))

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return incr.Val() <= int64(l.limit), nil
}
