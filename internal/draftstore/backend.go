package draftstore

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is a pluggable byte-blob KV store (spec §4.9: "pluggable backend
// (in-memory or Redis)"), shaped after the teacher's common/cache.Cache
// interface.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryBackend is an in-process backend for single-instance deployments
// and tests, adapted from the teacher's common/cache.MemoryCache.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]*memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryBackend starts a backend with a background expiry sweep.
func NewMemoryBackend() *MemoryBackend {
	b := &MemoryBackend{data: make(map[string]*memoryEntry)}
	go b.sweep()
	return b
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	b.data[key] = &memoryEntry{value: value, expiresAt: expiresAt}
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *MemoryBackend) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		b.mu.Lock()
		now := time.Now()
		for key, entry := range b.data {
			if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
				delete(b.data, key)
			}
		}
		b.mu.Unlock()
	}
}

// RedisBackend persists drafts in Redis so multiple MCP instances share
// session state, following the teacher's common/redis.Client
// SetWithExpiry/Get/Delete wrapper shape.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps a *redis.Client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}
