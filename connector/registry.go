package connector

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MainPool is the registry key of the shared pool.
const MainPool = "__main"

// Pool hands out connections up to a fixed capacity. Acquire blocks while
// the pool is exhausted.
type Pool interface {
	Acquire(ctx context.Context) (*Conn, error)
	Stats() ConnectionStats
	Close()
}

// HealthChecker is implemented by pools that can verify a live server
// round trip.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// PoolEntry is a registered pool with its usage times.
type PoolEntry struct {
	Pool       Pool
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// PoolRegistry keeps the pools of a provider by key. Entries are never
// evicted; Reset exists for tests.
type PoolRegistry struct {
	mu      sync.Mutex
	entries map[string]*PoolEntry
	now     func() time.Time
}

func NewPoolRegistry() *PoolRegistry {
	return &PoolRegistry{
		entries: make(map[string]*PoolEntry),
		now:     time.Now,
	}
}

// Get returns the pool under key, creating it with create on first use.
func (r *PoolRegistry) Get(ctx context.Context, key string, create func(context.Context) (Pool, error)) (Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok {
		e.LastUsedAt = r.now()
		return e.Pool, nil
	}

	p, err := create(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now()
	r.entries[key] = &PoolEntry{Pool: p, CreatedAt: now, LastUsedAt: now}
	return p, nil
}

// Entry returns a copy of the entry under key.
func (r *PoolRegistry) Entry(key string) (PoolEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return PoolEntry{}, false
	}
	return *e, true
}

func (r *PoolRegistry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Stats sums the statistics of all pools.
func (r *PoolRegistry) Stats() ConnectionStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s ConnectionStats
	for _, e := range r.entries {
		s = s.Add(e.Pool.Stats())
		s.Pools++
	}
	return s
}

// Close closes every pool and empties the registry.
func (r *PoolRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.Pool.Close()
	}
	r.entries = make(map[string]*PoolEntry)
}

// Reset forgets all pools without closing them.
func (r *PoolRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*PoolEntry)
}
