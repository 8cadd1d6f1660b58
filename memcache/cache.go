// Package memcache provides a least-recently-used cache bounded by the total
// cost of its values rather than by entry count.
//
// Cost comes from a SizeFunc supplied at construction, typically an
// approximate byte size. A value whose own cost exceeds the maximum is
// refused outright instead of evicting everything else first.
//
// Cache is not safe for concurrent use; it is meant to be owned by one
// worker. Shared wraps it with a mutex for caches that several workers read.
package memcache

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
)

// ErrTooLarge is returned by Insert when a value's cost exceeds the
// cache maximum.
var ErrTooLarge = errors.New("value exceeds cache capacity")

// SizeFunc returns the cost of a value.
type SizeFunc[V any] func(V) int

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithOnEvict registers a callback run for every entry evicted to make room.
// It is not called for Remove, Clear or replacement.
func WithOnEvict[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.onEvict = fn
	}
}

// WithLogger logs evictions at debug level.
func WithLogger[K comparable, V any](logger *slog.Logger) Option[K, V] {
	return func(c *Cache[K, V]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type entry[K comparable, V any] struct {
	key   K
	value V
	cost  int
}

// Cache is a cost-bounded LRU map.
type Cache[K comparable, V any] struct {
	max     int
	total   int
	size    SizeFunc[V]
	lru     *list.List
	index   map[K]*list.Element
	onEvict func(K, V)
	logger  *slog.Logger
}

// New creates a cache holding at most max units of cost.
func New[K comparable, V any](max int, size SizeFunc[V], opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		max:    max,
		size:   size,
		lru:    list.New(),
		index:  make(map[K]*list.Element),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Insert adds or replaces k. If the value alone costs more than the
// maximum the cache is left untouched and ErrTooLarge is returned; an
// existing value for k is kept in that case.
func (c *Cache[K, V]) Insert(k K, v V) error {
	cost := c.size(v)
	if cost < 0 {
		cost = 0
	}
	if cost > c.max {
		return fmt.Errorf("insert %v (cost %d, max %d): %w", k, cost, c.max, ErrTooLarge)
	}

	if el, ok := c.index[k]; ok {
		e := el.Value.(*entry[K, V])
		c.total += cost - e.cost
		e.value = v
		e.cost = cost
		c.lru.MoveToFront(el)
	} else {
		c.index[k] = c.lru.PushFront(&entry[K, V]{key: k, value: v, cost: cost})
		c.total += cost
	}
	c.trim()
	return nil
}

func (c *Cache[K, V]) trim() {
	for c.total > c.max {
		back := c.lru.Back()
		if back == nil {
			break
		}
		e := back.Value.(*entry[K, V])
		c.deleteElement(back)
		c.logger.Debug("cache eviction", "key", e.key, "cost", e.cost, "total", c.total)
		if c.onEvict != nil {
			c.onEvict(e.key, e.value)
		}
	}
}

// Get returns the value for k and marks it most recently used.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	el, ok := c.index[k]
	if !ok {
		var zero V
		return zero, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Peek returns the value for k without touching recency.
func (c *Cache[K, V]) Peek(k K) (V, bool) {
	el, ok := c.index[k]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(*entry[K, V]).value, true
}

// Remove deletes k and reports whether it was present.
func (c *Cache[K, V]) Remove(k K) bool {
	el, ok := c.index[k]
	if !ok {
		return false
	}
	c.deleteElement(el)
	return true
}

func (c *Cache[K, V]) deleteElement(el *list.Element) {
	e := el.Value.(*entry[K, V])
	c.lru.Remove(el)
	delete(c.index, e.key)
	c.total -= e.cost
}

// Clear drops every entry and resets the tracked total to zero.
func (c *Cache[K, V]) Clear() {
	c.lru.Init()
	c.index = make(map[K]*list.Element)
	c.total = 0
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int { return c.lru.Len() }

// Size returns the tracked total cost.
func (c *Cache[K, V]) Size() int { return c.total }

// Max returns the cost ceiling.
func (c *Cache[K, V]) Max() int { return c.max }

// Keys returns the keys from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	keys := make([]K, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}
