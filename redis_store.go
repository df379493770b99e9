package weatherproof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStaleRetention is how long an expired entry stays available in
// Redis as a degraded fallback before Redis drops it.
const DefaultStaleRetention = 24 * time.Hour

// RedisStore persists cache entries in Redis so a restarted process keeps
// serving previously fetched data. Entries are stored as JSON
// {payload, createdAt, expiresAt} under a prefixed resource key.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
}

// NewRedisStore wraps an existing Redis client. The caller keeps
// ownership of the client's lifecycle. retention bounds how long a stale
// entry remains readable after it expires; 0 applies
// DefaultStaleRetention.
func NewRedisStore(client *redis.Client, keyPrefix string, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = DefaultStaleRetention
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		retention: retention,
	}
}

func (s *RedisStore) resolveKey(key string) string {
	return s.keyPrefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	data, err := s.client.Get(ctx, s.resolveKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("redis entry %q corrupt: %w", key, err)
	}
	entry.Key = key
	return &entry, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %q: %w", key, err)
	}

	// Keep the entry around past its freshness window so it can serve as
	// a stale fallback, but let Redis reclaim it eventually.
	expiration := time.Until(entry.ExpiresAt) + s.retention
	if expiration <= 0 {
		expiration = s.retention
	}

	if err := s.client.Set(ctx, s.resolveKey(key), data, expiration).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.resolveKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}
