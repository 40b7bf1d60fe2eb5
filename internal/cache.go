package multinodetop

import (
	"context"
	"sync"
	"time"
)

// Cache wraps a Fetcher and remembers the last snapshot it returned
// successfully, so views can tell how old the data on screen is.
type Cache struct {
	Fetcher

	mu        sync.Mutex
	last      *Snapshot
	fetchedAt time.Time
	now       func() time.Time
}

func NewCache(f Fetcher) *Cache {
	return &Cache{
		Fetcher: f,
		now:     time.Now,
	}
}

func (c *Cache) Fetch(ctx context.Context) (*Snapshot, error) {
	snapshot, err := c.Fetcher.Fetch(ctx)
	if err != nil || snapshot == nil {
		return snapshot, err
	}
	c.mu.Lock()
	c.last = snapshot
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return snapshot, nil
}

// Last returns the most recent good snapshot and when it was fetched
func (c *Cache) Last() (*Snapshot, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.fetchedAt, c.last != nil
}

// Age is the time since the last good fetch, or 0 if there has been none
func (c *Cache) Age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return 0
	}
	return c.now().Sub(c.fetchedAt)
}
