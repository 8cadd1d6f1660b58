package memcache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Shared is a Cache guarded by a mutex.
type Shared[K comparable, V any] struct {
	mu      sync.Mutex
	cache   *Cache[K, V]
	flights singleflight.Group
}

// NewShared creates a mutex-guarded cache.
func NewShared[K comparable, V any](max int, size SizeFunc[V], opts ...Option[K, V]) *Shared[K, V] {
	return &Shared[K, V]{cache: New(max, size, opts...)}
}

func (s *Shared[K, V]) Insert(k K, v V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Insert(k, v)
}

func (s *Shared[K, V]) Get(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Get(k)
}

func (s *Shared[K, V]) Peek(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Peek(k)
}

func (s *Shared[K, V]) Remove(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Remove(k)
}

func (s *Shared[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Clear()
}

func (s *Shared[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

func (s *Shared[K, V]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Size()
}

func (s *Shared[K, V]) Max() int {
	return s.cache.max
}

// GetOrLoad returns the cached value for k, calling load on a miss. The
// lock is not held while load runs; concurrent misses for one key share a
// single load. A value too large to cache is still returned.
func (s *Shared[K, V]) GetOrLoad(k K, load func() (V, error)) (V, error) {
	if v, ok := s.Get(k); ok {
		return v, nil
	}
	res, err, _ := s.flights.Do(fmt.Sprintf("%#v", k), func() (any, error) {
		if v, ok := s.Peek(k); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		_ = s.Insert(k, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}
