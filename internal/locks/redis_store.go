package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisURL = "redis://localhost:6379"

// RedisStore - блокировки, общие для всех экземпляров сервиса
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(url string) (*RedisStore, error) {
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close закрывает клиент Redis
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Acquire берет блокировку через SET NX PX. Повторный захват тем же токеном продлевает TTL
func (s *RedisStore) Acquire(ctx context.Context, resource, token string, ttl time.Duration) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("lock store unavailable")
	}
	resource, token, err := normalize(resource, token)
	if err != nil {
		return false, err
	}
	ttl = normalizeTTL(ttl)

	ok, err := s.client.SetNX(ctx, lockKey(resource), token, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	res, err := s.client.Eval(ctx, extendScript, []string{lockKey(resource)}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Release удаляет блокировку, только если она еще принадлежит token
func (s *RedisStore) Release(ctx context.Context, resource, token string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("lock store unavailable")
	}
	resource, token, err := normalize(resource, token)
	if err != nil {
		return false, err
	}
	res, err := s.client.Eval(ctx, releaseScript, []string{lockKey(resource)}, token).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return 1
end
return 0
`

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`
