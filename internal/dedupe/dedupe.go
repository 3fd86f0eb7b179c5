// Package dedupe provides exactly-once acceptance of inbound webhook
// deliveries. Channels redeliver webhooks; the provider message id is the
// dedupe key.
package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Deduper records keys and reports repeats.
type Deduper interface {
	// Seen marks the key and reports whether it was already present.
	Seen(ctx context.Context, key string) (bool, error)
}

// RedisDeduper implements Deduper on redis SETNX with a TTL, so dedupe
// state survives restarts and is shared across replicas.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis creates a redis-backed deduper.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{
		client: client,
		ttl:    ttl,
		prefix: "inbound:seen:",
	}
}

// Seen implements Deduper.
func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	set, err := d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return !set, nil
}

// MemoryDeduper implements Deduper in process memory. Used when redis is
// not configured and in tests.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemory creates an in-memory deduper.
func NewMemory(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryDeduper{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen implements Deduper.
func (d *MemoryDeduper) Seen(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, k)
		}
	}

	if _, ok := d.seen[key]; ok {
		return true, nil
	}
	d.seen[key] = now
	return false, nil
}
