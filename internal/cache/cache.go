// Package cache remembers checker answers between runs so that unchanged
// chunks are not sent again.
package cache

import (
	"log/slog"
	"sync"

	"prosa/internal/backend"
)

// Cache keeps two generations in memory. Rotate, called after each run,
// drops entries the last run did not touch.
type Cache struct {
	mu   sync.Mutex
	cur  map[Key][]backend.Match
	prev map[Key][]backend.Match
	disk *Disk
	log  *slog.Logger

	hits, misses int
}

// New returns an empty cache. disk may be nil.
func New(disk *Disk, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		cur:  make(map[Key][]backend.Match),
		prev: make(map[Key][]backend.Match),
		disk: disk,
		log:  log,
	}
}

// Get returns the matches stored for k. Entries found in the previous
// generation or on disk move to the current one.
func (c *Cache) Get(k Key) ([]backend.Match, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	if m, ok := c.cur[k]; ok {
		c.hits++
		c.mu.Unlock()
		return m, true
	}
	if m, ok := c.prev[k]; ok {
		c.cur[k] = m
		c.hits++
		c.mu.Unlock()
		return m, true
	}
	c.mu.Unlock()

	m, ok, err := c.disk.Get(k)
	if err != nil {
		c.log.Debug("disk cache read failed", "key", k.String(), "err", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok {
		c.misses++
		return nil, false
	}
	c.cur[k] = m
	c.hits++
	return m, true
}

// Put stores matches under k in memory and on disk.
func (c *Cache) Put(k Key, matches []backend.Match) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cur[k] = matches
	c.mu.Unlock()
	if err := c.disk.Put(k, matches); err != nil {
		c.log.Debug("disk cache write failed", "key", k.String(), "err", err)
	}
}

// Rotate starts a new generation.
func (c *Cache) Rotate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prev = c.cur
	c.cur = make(map[Key][]backend.Match, len(c.prev))
}

// Len returns the number of entries in both generations.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.cur)
	for k := range c.prev {
		if _, ok := c.cur[k]; !ok {
			n++
		}
	}
	return n
}

// Stats returns hit and miss counters since creation.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
