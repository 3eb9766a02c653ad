package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultLRUSize = 256

// lruStore bounds memory for caches keyed by open ended input such as table
// names coming out of error reports.
type lruStore[K comparable, V any] struct {
	cache *lru.Cache[K, V]
}

func NewLRU[K comparable, V any](size int) Store[K, V] {
	if size <= 0 {
		size = defaultLRUSize
	}
	c, _ := lru.New[K, V](size)
	return &lruStore[K, V]{cache: c}
}

func (s *lruStore[K, V]) Get(key K) (V, bool) {
	return s.cache.Get(key)
}

func (s *lruStore[K, V]) Set(key K, value V) {
	s.cache.Add(key, value)
}

func (s *lruStore[K, V]) Len() int {
	return s.cache.Len()
}

func (s *lruStore[K, V]) Reset() {
	s.cache.Purge()
}
