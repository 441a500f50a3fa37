package returnurl

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps return URLs in Redis so web deployments with more than
// one instance can complete a login round trip on any of them.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "returnurl:",
		ttl:    DefaultTTL,
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Save(ctx context.Context, key, url string) error {
	if key == "" {
		return fmt.Errorf("returnurl: key is required")
	}
	if err := s.client.Set(ctx, s.key(key), url, s.ttl).Err(); err != nil {
		return fmt.Errorf("returnurl: saving: %w", err)
	}
	return nil
}

func (s *RedisStore) Pop(ctx context.Context, key string) (string, error) {
	val, err := s.client.GetDel(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("returnurl: popping: %w", err)
	}
	return val, nil
}
