// Package idempotency remembers keys of requests that were already processed.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "idem:"

	valuePending = "pending"
	valueDone    = "done"
)

// Store claims keys. Claim reports false when the key was claimed before and
// has not expired yet. A claimed key stays pending until Complete marks it
// done or Release forgets it.
type Store interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Complete(ctx context.Context, key string, ttl time.Duration) error
	Done(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisStore claims keys with SET NX.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Claim implements Store.
func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, keyPrefix+key, valuePending, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return ok, nil
}

// Complete marks the key done for ttl.
func (s *RedisStore) Complete(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, keyPrefix+key, valueDone, ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Done reports whether the request holding key has finished.
func (s *RedisStore) Done(ctx context.Context, key string) (bool, error) {
	v, err := s.rdb.Get(ctx, keyPrefix+key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("read idempotency key: %w", err)
	}
	return v == valueDone, nil
}

// Release forgets the key so the request may be retried.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

type memEntry struct {
	exp  time.Time
	done bool
}

func (e memEntry) live(now time.Time) bool {
	return e.exp.IsZero() || now.Before(e.exp)
}

// MemoryStore is the single-process fallback.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]memEntry
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]memEntry), now: time.Now}
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// Claim implements Store. Expired keys are collected lazily.
func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.keys[key]; ok && e.live(now) {
		return false, nil
	}
	s.keys[key] = memEntry{exp: s.expiry(ttl)}
	if len(s.keys)%1024 == 0 {
		for k, e := range s.keys {
			if !e.live(now) {
				delete(s.keys, k)
			}
		}
	}
	return true, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	s.keys[key] = memEntry{exp: s.expiry(ttl), done: true}
	s.mu.Unlock()
	return nil
}

// Done implements Store.
func (s *MemoryStore) Done(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.keys[key]
	return ok && e.done && e.live(s.now()), nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return nil
}
