package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/library/internal/repository"
)

type PopularBooks interface {
	MostBorrowed(ctx context.Context, limit uint) ([]*repository.BookStats, error)
}

type entry struct {
	book    repository.Book
	expires time.Time
}

// BookCache keeps catalog metadata for a bounded time. It never holds loan
// state. A nil *BookCache is valid and caches nothing.
type BookCache struct {
	mu      sync.RWMutex
	items   map[int64]entry
	ttl     time.Duration
	log     *zap.Logger
	timeNow func() time.Time
}

// NewBookCache returns nil when ttl is not positive.
func NewBookCache(ttl time.Duration, log *zap.Logger) *BookCache {
	if ttl <= 0 {
		return nil
	}
	return &BookCache{
		items:   make(map[int64]entry),
		ttl:     ttl,
		log:     log,
		timeNow: time.Now,
	}
}

// Warm drops expired entries and preloads the most borrowed books.
func (c *BookCache) Warm(ctx context.Context, src PopularBooks, limit uint) error {
	if c == nil {
		return nil
	}
	pruned := c.prune()

	stats, err := src.MostBorrowed(ctx, limit)
	if err != nil {
		return err
	}
	for _, s := range stats {
		c.Set(&s.Book)
	}
	c.log.Info("book cache warmed", zap.Int("books", len(stats)), zap.Int("pruned", pruned))
	return nil
}

func (c *BookCache) prune() int {
	now := c.timeNow()
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for id, e := range c.items {
		if !now.Before(e.expires) {
			delete(c.items, id)
			pruned++
		}
	}
	return pruned
}

func (c *BookCache) Get(id int64) (*repository.Book, bool) {
	if c == nil {
		return nil, false
	}
	now := c.timeNow()
	c.mu.RLock()
	e, found := c.items[id]
	c.mu.RUnlock()
	if !found {
		return nil, false
	}
	if !now.Before(e.expires) {
		c.evict(id, e.expires)
		return nil, false
	}
	book := e.book
	return &book, true
}

// evict removes id unless a concurrent Set has refreshed it.
func (c *BookCache) evict(id int64, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, found := c.items[id]; found && e.expires.Equal(expires) {
		delete(c.items, id)
	}
}

func (c *BookCache) Set(book *repository.Book) {
	if c == nil || book == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[book.ID] = entry{book: *book, expires: c.timeNow().Add(c.ttl)}
}

func (c *BookCache) Delete(id int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
}

func (c *BookCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
