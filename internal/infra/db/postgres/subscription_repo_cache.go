package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/repository"
	"umuhanda-backend/internal/infra/metrics"
	red "umuhanda-backend/internal/infra/redis"
)

var _ repository.SubscriptionRepository = (*subscriptionRepoCacheDecorator)(nil)

const subscriptionListKey = "subscriptions:all"

// subscriptionRepoCacheDecorator caches catalog reads in Redis. Cache failures
// fall through to the inner repository.
type subscriptionRepoCacheDecorator struct {
	inner repository.SubscriptionRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewSubscriptionRepoCacheDecorator(inner repository.SubscriptionRepository, cache red.RedisClient, logger *zerolog.Logger) repository.SubscriptionRepository {
	return &subscriptionRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   1 * time.Hour,
		log:   logger,
	}
}

func subscriptionKey(id string) string { return fmt.Sprintf("subscription:%s", id) }

func (d *subscriptionRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	key := subscriptionKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var s model.Subscription
		if json.Unmarshal([]byte(val), &s) == nil {
			metrics.IncCacheRequest("subscription", "hit")
			return &s, nil
		}
	} else if !red.IsNil(err) {
		d.log.Warn().Err(err).Str("key", key).Msg("subscription cache read failed")
	}

	metrics.IncCacheRequest("subscription", "miss")
	s, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if s != nil {
		b, _ := json.Marshal(s)
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return s, nil
}

// Save invalidates the entry and the list before writing through.
func (d *subscriptionRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	_ = d.cache.Del(ctx, subscriptionKey(s.ID))
	_ = d.cache.Del(ctx, subscriptionListKey)
	return d.inner.Save(ctx, tx, s)
}

func (d *subscriptionRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Subscription, error) {
	val, err := d.cache.Get(ctx, subscriptionListKey)
	if err == nil {
		var list []*model.Subscription
		if json.Unmarshal([]byte(val), &list) == nil {
			metrics.IncCacheRequest("subscription_list", "hit")
			return list, nil
		}
	} else if !red.IsNil(err) {
		d.log.Warn().Err(err).Msg("subscription list cache read failed")
	}

	metrics.IncCacheRequest("subscription_list", "miss")
	list, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		b, _ := json.Marshal(list)
		_ = d.cache.Set(ctx, subscriptionListKey, b, d.ttl)
	}
	return list, nil
}
