package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"umuhanda-backend/internal/domain/ports/repository"
)

var _ repository.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter: INCR the key, set the TTL on the first hit.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

// ActionKey scopes a limit to one action and one subject (email, phone, ip).
func ActionKey(action, subject string) string {
	return fmt.Sprintf("rate_limit:%s:%s", action, strings.ToLower(strings.TrimSpace(subject)))
}
