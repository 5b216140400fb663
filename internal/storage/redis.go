package storage

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9" // Redis client
)

// RedisStore implements Store on Redis. Values never expire.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Get retrieves a value from Redis and unmarshals it into dest
func (s *RedisStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	return get(ctx, s.rdb, key, dest)
}

// Set stores value as JSON under key
func (s *RedisStore) Set(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrStorage, key, err)
	}
	if err := s.rdb.Set(ctx, key, b, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrStorage, key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrStorage, key, err)
	}
	return nil
}

// Update runs fn under WATCH on the given keys and applies its writes in a
// single MULTI/EXEC block. Errors returned by fn are passed through untouched.
func (s *RedisStore) Update(ctx context.Context, watch []string, fn func(r Reader) ([]Write, error)) error {
	var fnErr error
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		writes, err := fn(txReader{tx: tx})
		if err != nil {
			fnErr = err
			return err
		}
		encoded := make([][]byte, len(writes))
		for i, w := range writes {
			if w.Delete {
				continue
			}
			b, err := json.Marshal(w.Value)
			if err != nil {
				return fmt.Errorf("encode %s: %w", w.Key, err)
			}
			encoded[i] = b
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, w := range writes {
				if w.Delete {
					pipe.Del(ctx, w.Key)
				} else {
					pipe.Set(ctx, w.Key, encoded[i], 0)
				}
			}
			return nil
		})
		return err
	}, watch...)

	switch {
	case fnErr != nil:
		return fnErr
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %w", ErrStorage, ErrConflict)
	case err != nil:
		return fmt.Errorf("%w: update: %w", ErrStorage, err)
	}
	return nil
}

type txReader struct {
	tx *redis.Tx
}

func (r txReader) Get(ctx context.Context, key string, dest any) (bool, error) {
	return get(ctx, r.tx, key, dest)
}

func get(ctx context.Context, c redis.Cmdable, key string, dest any) (bool, error) {
	val, err := c.Get(ctx, key).Bytes() // Get value from Redis
	if errors.Is(err, redis.Nil) {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, fmt.Errorf("%w: get %s: %w", ErrStorage, key, err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("%w: decode %s: %w", ErrStorage, key, err)
	}
	return true, nil
}
