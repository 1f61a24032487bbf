package query

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultStaleTime matches the staleness window of the browser client.
const DefaultStaleTime = 5 * time.Minute

// Cache maps query fingerprints to fetched results. A Cache belongs to exactly
// one render pass (one prerendered route or one server request) and is
// discarded afterwards.
type Cache struct {
	staleTime time.Duration
	now       func() time.Time

	// sf coalesces concurrent warms of one key into a single fetch.
	sf singleflight.Group

	mu       sync.Mutex
	entries  map[string]*Entry
	inflight int
}

type Option func(*Cache)

// WithStaleTime sets the staleness window. Use Forever to never refetch.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) { c.staleTime = d }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		staleTime: DefaultStaleTime,
		now:       time.Now,
		entries:   map[string]*Entry{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StaleTime returns the configured staleness window.
func (c *Cache) StaleTime() time.Duration { return c.staleTime }

// Read returns the current entry for key. The first read of an absent key
// records a pending entry, so the key still shows up in the snapshot; ok is
// false in that case.
func (c *Cache) Read(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := key.Hash()
	e, ok := c.entries[hash]
	if !ok {
		e = &Entry{Key: key, Status: StatusPending, StaleTime: c.staleTime}
		c.entries[hash] = e
		return *e, false
	}
	return *e, true
}

// Warm makes sure key has a settled entry. A fresh entry is returned without
// calling fetch; otherwise fetch runs once, shared by every concurrent caller
// of the same key. A fetch failure is stored on the entry with StatusError and
// is not retried until the entry goes stale or is invalidated.
func (c *Cache) Warm(ctx context.Context, key Key, fetch Fetcher) Entry {
	hash := key.Hash()

	c.mu.Lock()
	if e, ok := c.freshLocked(hash); ok {
		c.mu.Unlock()
		return e
	}
	c.inflight++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inflight--
		c.mu.Unlock()
	}()

	v, _, _ := c.sf.Do(hash, func() (any, error) {
		c.mu.Lock()
		// a flight for this key may have finished between the check above and Do
		if e, ok := c.freshLocked(hash); ok {
			c.mu.Unlock()
			return e, nil
		}
		if _, ok := c.entries[hash]; !ok {
			c.entries[hash] = &Entry{Key: key, Status: StatusPending, StaleTime: c.staleTime}
		}
		c.mu.Unlock()

		value, err := runFetch(ctx, fetch)

		e := Entry{Key: key, UpdatedAt: c.now(), StaleTime: c.staleTime}
		if err != nil {
			e.Status = StatusError
			e.Err = err
		} else {
			e.Status = StatusSuccess
			e.Value = value
		}

		c.mu.Lock()
		c.entries[hash] = &e
		c.mu.Unlock()
		return e, nil
	})
	return v.(Entry)
}

// Invalidate drops the entry for key so the next Warm fetches again.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := key.Hash()
	if e, ok := c.entries[hash]; ok && e.Status == StatusPending {
		return
	}
	delete(c.entries, hash)
}

// Len returns the number of entries, pending ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) freshLocked(hash string) (Entry, bool) {
	e, ok := c.entries[hash]
	if !ok || !e.settled() || e.Stale(c.now()) {
		return Entry{}, false
	}
	return *e, true
}

func runFetch(ctx context.Context, fetch Fetcher) (v any, err error) {
	if fetch == nil {
		return nil, fmt.Errorf("query: nil fetcher")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query: fetcher panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return fetch(ctx)
}
