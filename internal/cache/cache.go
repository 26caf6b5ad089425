// Package cache stores rendered GET responses in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Entry is one cached response.
type Entry struct {
	Status   int       `msgpack:"status"`
	Body     []byte    `msgpack:"body"`
	StoredAt time.Time `msgpack:"stored_at"`
}

type Cache interface {
	// Get reports ok=false on a miss.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)
	Set(ctx context.Context, key string, entry Entry) error
	// Generation changes whenever Flush runs for model. Keys built from an
	// older generation are never read again.
	Generation(ctx context.Context, model string) (int64, error)
	// Flush bumps the generation of model and drops its entries.
	Flush(ctx context.Context, model string) error
}

// Key builds "<model>:<sha256 of parts>".
func Key(model string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return model + ":" + hex.EncodeToString(sum[:])
}

type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var e Entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("invalid cache entry %s: %w", key, err)
	}
	return e, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, e Entry) error {
	raw, err := msgpack.Marshal(e)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err()
}

func (r *RedisCache) generationKey(model string) string {
	return r.prefix + model + "#gen"
}

func (r *RedisCache) Generation(ctx context.Context, model string) (int64, error) {
	gen, err := r.client.Get(ctx, r.generationKey(model)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *RedisCache) Flush(ctx context.Context, model string) error {
	// bump first so a reader that loaded before the write stores under a dead key
	if err := r.client.Incr(ctx, r.generationKey(model)).Err(); err != nil {
		return fmt.Errorf("failed to bump generation of %s: %w", model, err)
	}
	iter := r.client.Scan(ctx, 0, r.prefix+model+":*", 1000).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan error: %w", err)
	}
	return nil
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (Entry, bool, error)  { return Entry{}, false, nil }
func (Nop) Set(context.Context, string, Entry) error          { return nil }
func (Nop) Generation(context.Context, string) (int64, error) { return 0, nil }
func (Nop) Flush(context.Context, string) error               { return nil }
