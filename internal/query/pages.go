package query

import (
	"context"
	"sync"
)

// PageFunc fetches limit items starting at offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

// PageOffset translates a zero-based page index into an item offset.
func PageOffset(page, pageSize int) int {
	return page * pageSize
}

// HasNextPage reports whether another page may follow one of length n.
func HasNextPage(n, pageSize int) bool {
	return n >= pageSize
}

// Pages is an offset-paged infinite list. Every page is a separate cache
// entry keyed by the base key plus the page index.
//
// Once the base key is invalidated or the cache is reset, the loaded pages
// are dropped and the next FetchNext starts over from the first page.
type Pages[T any] struct {
	cache    *Cache
	key      Key
	pageSize int
	fetch    PageFunc[T]

	mu      sync.Mutex
	pages   [][]T
	hasNext bool
	// gen is the invalidation generation of page 0 when it was loaded.
	gen uint64
}

// NewPages creates an empty infinite list. pageSize must be positive.
func NewPages[T any](c *Cache, key Key, pageSize int, fetch PageFunc[T]) *Pages[T] {
	if pageSize <= 0 {
		pageSize = 1
	}
	return &Pages[T]{
		cache:    c,
		key:      key,
		pageSize: pageSize,
		fetch:    fetch,
		hasNext:  true,
	}
}

// Key returns the base key shared by all pages.
func (p *Pages[T]) Key() Key {
	return p.key
}

// PageSize returns the fixed page size.
func (p *Pages[T]) PageSize() int {
	return p.pageSize
}

// FetchNext loads the next page and returns its items.
// It returns nil without fetching once the last page has been seen.
func (p *Pages[T]) FetchNext(ctx context.Context) ([]T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pages) > 0 {
		if gen, valid := p.cache.generation(p.key.With(0)); !valid || gen != p.gen {
			p.pages = nil
			p.hasNext = true
		}
	}
	if !p.hasNext {
		return nil, nil
	}

	index := len(p.pages)
	items, err := Fetch(ctx, p.cache, p.key.With(index), func(ctx context.Context) ([]T, error) {
		return p.fetch(ctx, PageOffset(index, p.pageSize), p.pageSize)
	})
	if err != nil {
		return nil, err
	}

	if index == 0 {
		p.gen, _ = p.cache.generation(p.key.With(0))
	}
	p.pages = append(p.pages, items)
	p.hasNext = HasNextPage(len(items), p.pageSize)
	return items, nil
}

// HasNext reports whether FetchNext may return more items. It does not
// account for an invalidation that FetchNext has not seen yet.
func (p *Pages[T]) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasNext
}

// PageCount returns how many pages have been loaded.
func (p *Pages[T]) PageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages)
}

// Items returns all loaded items in page order.
func (p *Pages[T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []T
	for _, page := range p.pages {
		out = append(out, page...)
	}
	return out
}

// Refresh invalidates every page and reloads the first one.
func (p *Pages[T]) Refresh(ctx context.Context) ([]T, error) {
	p.cache.Invalidate(p.key)

	p.mu.Lock()
	p.pages = nil
	p.hasNext = true
	p.mu.Unlock()

	return p.FetchNext(ctx)
}
