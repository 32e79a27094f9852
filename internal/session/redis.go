package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "crimescope:session:"

// maxUpdateRetries bounds optimistic-lock retries in Update.
const maxUpdateRetries = 8

// RedisStore keeps states as JSON values with a sliding TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

// NewRedisStore wraps an open client and checks that it answers.
func NewRedisStore(ctx context.Context, rdb *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func key(id string) string { return keyPrefix + id }

func decode(b []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Get returns the state for id.
func (r *RedisStore) Get(ctx context.Context, id string) (*State, error) {
	b, err := r.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decode(b)
}

// Update runs fn inside a WATCH transaction and retries on conflicts.
func (r *RedisStore) Update(ctx context.Context, id string, fn func(*State) error) (*State, error) {
	k := key(id)
	var out *State
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, k).Bytes()
		var s *State
		switch {
		case errors.Is(err, redis.Nil):
			s = New(id)
		case err != nil:
			return fmt.Errorf("redis get: %w", err)
		default:
			if s, err = decode(b); err != nil {
				return err
			}
		}
		if err := fn(s); err != nil {
			return err
		}
		s.UpdatedAt = time.Now()
		nb, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, nb, r.ttl)
			return nil
		})
		if err == nil {
			out = s
		}
		return err
	}
	for i := 0; i < maxUpdateRetries; i++ {
		err := r.rdb.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("redis update %s: too many conflicts", id)
}

// Delete removes the state for id.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error { return r.rdb.Close() }
