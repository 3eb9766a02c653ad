package cache

import (
	"sync"
)

// memStore never evicts. Entries live as long as the store.
type memStore[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

func NewMap[K comparable, V any]() Store[K, V] {
	return &memStore[K, V]{
		data: make(map[K]V),
	}
}

func (c *memStore[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// Set overwrites any previous value; concurrent fills of the same key
// carry the same content so the last one simply wins.
func (c *memStore[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *memStore[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *memStore[K, V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]V)
}
