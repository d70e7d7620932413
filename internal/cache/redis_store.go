package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-cart/internal/cart"
)

// RedisStore persists cart snapshots as JSON documents in Redis. Every save refreshes the TTL,
// so carts that stop changing expire on their own.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore constructs a store. A ttl of zero keeps snapshots until they are deleted.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Load implements cart.Store. It reports whether a snapshot existed.
func (s *RedisStore) Load(ctx context.Context, instance string) (cart.Snapshot, bool, error) {
	if s == nil || s.client == nil {
		return cart.Snapshot{}, false, errors.New("cart store: redis client not configured")
	}
	data, err := s.client.Get(ctx, KeyCart(s.prefix, instance)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cart.Snapshot{}, false, nil
		}
		return cart.Snapshot{}, false, err
	}
	var snapshot cart.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return cart.Snapshot{}, false, fmt.Errorf("decode cart %s: %w", instance, err)
	}
	return snapshot, true, nil
}

// Save implements cart.Store.
func (s *RedisStore) Save(ctx context.Context, snapshot cart.Snapshot) error {
	if s == nil || s.client == nil {
		return errors.New("cart store: redis client not configured")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, KeyCart(s.prefix, snapshot.Instance), data, s.ttl).Err()
}

// Delete implements cart.Store. Deleting an absent cart is not an error.
func (s *RedisStore) Delete(ctx context.Context, instance string) error {
	if s == nil || s.client == nil {
		return errors.New("cart store: redis client not configured")
	}
	return s.client.Del(ctx, KeyCart(s.prefix, instance)).Err()
}

// Ping checks connectivity with Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("cart store: redis client not configured")
	}
	return s.client.Ping(ctx).Err()
}
