package content

import (
	"context"
	"log/slog"

	"github.com/caffeineduck/wikilua/memcache"
)

// Cached puts a byte-bounded article cache in front of a Store. It is safe
// for concurrent use by render workers.
type Cached struct {
	Store
	pages   *memcache.Shared[string, Page]
	sources *memcache.Shared[string, string]
}

// NewCached caches up to maxBytes of pages and the same again of module
// source.
func NewCached(store Store, maxBytes int, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		Store: store,
		pages: memcache.NewShared[string, Page](maxBytes,
			func(p Page) int { return len(p.Title) + len(p.Text) + len(p.ID) },
			memcache.WithLogger[string, Page](logger)),
		sources: memcache.NewShared[string, string](maxBytes,
			func(s string) int { return len(s) },
			memcache.WithLogger[string, string](logger)),
	}
}

func (c *Cached) Page(ctx context.Context, title string) (Page, error) {
	key := NormalizeTitle(title)
	return c.pages.GetOrLoad(key, func() (Page, error) {
		return c.Store.Page(ctx, key)
	})
}

func (c *Cached) Source(ctx context.Context, id string) (string, error) {
	return c.sources.GetOrLoad(id, func() (string, error) {
		return c.Store.Source(ctx, id)
	})
}

// Put writes through and drops the cached page. Sources are keyed by
// content, so they never go stale.
func (c *Cached) Put(ctx context.Context, title, text string) (Page, error) {
	p, err := c.Store.Put(ctx, title, text)
	if err != nil {
		return Page{}, err
	}
	c.pages.Remove(p.Title)
	return p, nil
}

// CachedBytes reports the bytes held by the page and source caches.
func (c *Cached) CachedBytes() int {
	return c.pages.Size() + c.sources.Size()
}
