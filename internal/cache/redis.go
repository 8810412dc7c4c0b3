package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"food-ordering/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{client: client, baseTTL: baseTTL}
}

func (r *RedisCache) Get(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(sessionKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &cart, nil
}

// setIfNotOlder writes ARGV[2] unless the stored cart carries a higher
// version than ARGV[1]. Unreadable entries are overwritten.
var setIfNotOlder = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, cart = pcall(cjson.decode, cur)
  if ok and type(cart) == 'table' then
    local v = tonumber(cart['version'])
    if v and v > tonumber(ARGV[1]) then
      return 0
    end
  end
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Set stores cart with the base TTL plus up to a minute of jitter so entries
// written together do not expire together. A cart older than the cached one
// is dropped.
func (r *RedisCache) Set(ctx context.Context, sessionKey string, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	ttl := r.baseTTL + time.Duration(rand.Intn(60))*time.Second
	err = setIfNotOlder.Run(ctx, r.client, []string{cacheKey(sessionKey)}, cart.Version, data, ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, sessionKey string) error {
	if err := r.client.Del(ctx, cacheKey(sessionKey)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func cacheKey(sessionKey string) string {
	return fmt.Sprintf("cart:%s", sessionKey)
}
