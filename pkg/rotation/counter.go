package rotation

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Counter hands out monotonically increasing values per scope, starting at 0.
type Counter interface {
	// Next returns the next value for scope. The first call per scope
	// returns 0.
	Next(ctx context.Context, scope string) (int64, error)
}

// MemoryCounter is a process-local Counter.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryCounter builds an empty in-process counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (c *MemoryCounter) Next(_ context.Context, scope string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.counts[scope]
	c.counts[scope] = n + 1
	return n, nil
}

// RedisCounter is a Counter backed by Redis INCR, shared across replicas.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter builds a Counter over client. Keys are written as
// "<prefix><scope>".
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) Next(ctx context.Context, scope string) (int64, error) {
	// INCR returns 1 on first call; shift so scopes start at 0.
	n, err := c.client.Incr(ctx, c.prefix+scope).Result()
	if err != nil {
		return 0, err
	}
	return n - 1, nil
}
