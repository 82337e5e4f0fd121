package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. Expiry is enforced server-side via
// SET EX, so entries vanish without a sweeper.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("rate limit redis: not initialized")
	}
	raw, errGet := s.client.Get(ctx, s.buildKey(key)).Bytes()
	if errGet != nil {
		if errors.Is(errGet, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("rate limit redis: get: %w", errGet)
	}
	if errUnmarshal := json.Unmarshal(raw, dest); errUnmarshal != nil {
		return false, fmt.Errorf("rate limit redis: decode: %w", errUnmarshal)
	}
	return true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value any) error {
	if s == nil || s.client == nil {
		return errors.New("rate limit redis: not initialized")
	}
	raw, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("rate limit redis: encode: %w", errMarshal)
	}
	if errSet := s.client.Set(ctx, s.buildKey(key), raw, EntryTTL).Err(); errSet != nil {
		return fmt.Errorf("rate limit redis: set: %w", errSet)
	}
	return nil
}

func (s *RedisStore) buildKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}
