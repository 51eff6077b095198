// ABOUTME: Thread-safe TTL cache remembering recently processed event ids.
// ABOUTME: Shields the dispatcher from at-least-once redelivery by the poller.

package dedupe

import (
	"container/list"
	"strconv"
	"sync"
	"time"
)

// cacheEntry stores the timestamp and list element for a cached key.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache tracks event ids that were already handed to the engine, per bot
// token. Entries expire after a TTL and the cache is size-limited, with the
// oldest entry evicted first. A duplicate that falls outside the window is
// not caught here; the store's idempotent writes absorb it instead.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedupe cache with the given TTL and maximum size. A
// background goroutine periodically sweeps expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func eventKey(token string, eventID int64) string {
	return token + ":" + strconv.FormatInt(eventID, 10)
}

// Seen atomically checks whether the event was already processed within the
// TTL window and marks it if not. Returns true for a duplicate.
func (c *Cache) Seen(token string, eventID int64) bool {
	key := eventKey(token, eventID)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	if ok && time.Since(entry.timestamp) < c.ttl {
		return true
	}

	c.markLocked(key)
	return false
}

// markLocked records a key, must be called with mu held.
func (c *Cache) markLocked(key string) {
	now := time.Now()

	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry{timestamp: now, element: elem}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes all expired entries.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background sweep goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
