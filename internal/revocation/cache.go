// ABOUTME: Thread-safe expiring set of redeemed token IDs.
// ABOUTME: Makes refresh tokens single-use until they would have expired anyway.

package revocation

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the expiry and list element for a redeemed token ID.
type entry struct {
	expiresAt time.Time
	element   *list.Element
}

// Cache tracks token IDs that must not be accepted again. An ID only needs to
// be remembered until the token itself expires, after which signature
// verification rejects it on its own. Uses a doubly-linked list in redemption
// order so eviction at capacity is O(1).
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // token IDs in redemption order (oldest at front)
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache holding at most maxSize IDs.
// A background goroutine periodically drops expired IDs.
func New(maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Redeem atomically records id as used until expiresAt.
// Returns true on first use, false if id was already redeemed and has not expired.
func (c *Cache) Redeem(id string, expiresAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.seen[id]; ok {
		if now.Before(e.expiresAt) {
			return false
		}
		c.order.Remove(e.element)
		delete(c.seen, id)
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	c.seen[id] = &entry{
		expiresAt: expiresAt,
		element:   c.order.PushBack(id),
	}
	return true
}

// Revoked reports whether id has been redeemed and not yet expired.
func (c *Cache) Revoked(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[id]
	return ok && c.now().Before(e.expiresAt)
}

// Len returns the number of tracked IDs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// evictOldest removes the earliest redeemed ID. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, id)
}

// cleanup runs in a background goroutine, periodically removing expired IDs.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired IDs from the cache.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, e := range c.seen {
		if !now.Before(e.expiresAt) {
			c.order.Remove(e.element)
			delete(c.seen, id)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
