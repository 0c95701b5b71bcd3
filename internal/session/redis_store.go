package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps each session as a Redis hash under "session:<id>" with a
// sliding TTL. Hash fields map 1:1 to session keys.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil for session store")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		client: client,
		prefix: "session:",
		ttl:    ttl,
	}, nil
}

func (s *RedisStore) Open(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}
	return &redisSession{store: s, id: id}, nil
}

type redisSession struct {
	store *RedisStore
	id    string
}

func (s *redisSession) key() string {
	return s.store.prefix + s.id
}

func (s *redisSession) ID() string {
	return s.id
}

func (s *redisSession) Get(ctx context.Context, key string) (string, error) {
	val, err := s.store.client.HGet(ctx, s.key(), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("session get failed: %w", err)
	}
	return val, nil
}

func (s *redisSession) Set(ctx context.Context, key, value string) error {
	pipe := s.store.client.TxPipeline()
	pipe.HSet(ctx, s.key(), key, value)
	pipe.Expire(ctx, s.key(), s.store.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session set failed: %w", err)
	}
	return nil
}

func (s *redisSession) Delete(ctx context.Context, key string) error {
	return s.store.client.HDel(ctx, s.key(), key).Err()
}

func (s *redisSession) Destroy(ctx context.Context) error {
	return s.store.client.Del(ctx, s.key()).Err()
}
