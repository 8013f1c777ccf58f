package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/filegate/pkg/config"
	"mercator-hq/filegate/pkg/verdict"
)

const scanBatch = 500

// releaseScript deletes a claim only if it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps entries in redis as JSON, shared by every instance
// pointing at the same server and key prefix.
//
// Keys are "<prefix>:decision:<hash>:<org>" and "<prefix>:claim:<hash>:<org>".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisStoreFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = config.DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) entryKey(key verdict.Key) string {
	return s.prefix + ":decision:" + key.ContentHash + ":" + key.OrgScope
}

func (s *RedisStore) claimKey(key verdict.Key) string {
	return s.prefix + ":claim:" + key.ContentHash + ":" + key.OrgScope
}

// Get reads and decodes the entry for key.
func (s *RedisStore) Get(ctx context.Context, key verdict.Key) (*Entry, error) {
	raw, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, verdict.NewCacheCorruptError(key, err)
	}
	return &e, nil
}

// Set writes e with a redis TTL matching its expiry. Already expired
// entries are not written.
func (s *RedisStore) Set(ctx context.Context, e *Entry) error {
	ttl := time.Until(e.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, s.entryKey(e.Key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key verdict.Key) error {
	if err := s.client.Del(ctx, s.entryKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteHash removes hash in every org.
func (s *RedisStore) DeleteHash(ctx context.Context, hash string) (int, error) {
	return s.deleteMatching(ctx, s.prefix+":decision:"+hash+":*")
}

// Purge removes every decision under the prefix. Claims are left to expire.
func (s *RedisStore) Purge(ctx context.Context) (int, error) {
	return s.deleteMatching(ctx, s.prefix+":decision:*")
}

func (s *RedisStore) deleteMatching(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// Claim sets the claim key with SETNX.
func (s *RedisStore) Claim(ctx context.Context, key verdict.Key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.claimKey(key), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release drops the claim if owner still holds it.
func (s *RedisStore) Release(ctx context.Context, key verdict.Key, owner string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.claimKey(key)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release claim: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
