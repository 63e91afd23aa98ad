package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisKeyPrefix namespaces conversation records in Redis.
const RedisKeyPrefix = "roombot:session:"

// RedisStore keeps records as JSON strings with an optional expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps client. A ttl of zero keeps records forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, key string) (Record, error) {
	data, err := s.client.Get(ctx, RedisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("session: load %s: %w", key, err)
	}
	return Decode(data)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, key string, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, RedisKeyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: save %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, RedisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", key, err)
	}
	return nil
}
