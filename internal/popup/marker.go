package popup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryMarker lives as long as the gate that owns it.
type MemoryMarker struct {
	mu  sync.Mutex
	set bool
}

func (m *MemoryMarker) IsSet(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set, nil
}

func (m *MemoryMarker) Claim(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set {
		return false, nil
	}
	m.set = true
	return true, nil
}

func (m *MemoryMarker) Touch(context.Context) error { return nil }

// RedisMarker shares the marker between instances serving the same session.
// The key expires with the session; Touch pushes the expiry out while the
// session is in use.
type RedisMarker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisMarker(client *redis.Client, sessionID string, ttl time.Duration) *RedisMarker {
	return &RedisMarker{
		client: client,
		key:    fmt.Sprintf("promo-gate:session:%s:popup_shown", sessionID),
		ttl:    ttl,
	}
}

func (r *RedisMarker) IsSet(ctx context.Context) (bool, error) {
	n, err := r.client.Exists(ctx, r.key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}

func (r *RedisMarker) Claim(ctx context.Context) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key, "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *RedisMarker) Touch(ctx context.Context) error {
	if err := r.client.Expire(ctx, r.key, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}
