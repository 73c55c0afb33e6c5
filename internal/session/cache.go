package session

import (
	"sync"
	"time"

	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/pkg/metrics"
)

// EvictFunc receives sessions leaving the cache so they can be flushed
// to the persistent store first.
type EvictFunc func(*model.Session)

// cache is a bounded, TTL-evicting map from session ID to session.
// Semantics are last-write-wins: the persisted copy is the source of
// truth across restarts, the cache only bounds memory under many
// concurrent sessions.
type cache struct {
	mu       sync.Mutex
	entries  map[string]*model.Session
	capacity int
	ttl      time.Duration
	onEvict  EvictFunc
}

func newCache(capacity int, ttl time.Duration, onEvict EvictFunc) *cache {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &cache{
		entries:  make(map[string]*model.Session),
		capacity: capacity,
		ttl:      ttl,
		onEvict:  onEvict,
	}
}

func (c *cache) get(sessionID string) (*model.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.entries[sessionID]
	return sess, ok
}

func (c *cache) put(sess *model.Session) {
	c.mu.Lock()
	var evicted []*model.Session
	if _, exists := c.entries[sess.ID]; !exists && len(c.entries) >= c.capacity {
		evicted = append(evicted, c.evictOldestLocked())
	}
	c.entries[sess.ID] = sess
	metrics.SessionsActive.Set(float64(len(c.entries)))
	c.mu.Unlock()

	c.flush(evicted)
}

func (c *cache) remove(sessionID string) {
	c.mu.Lock()
	delete(c.entries, sessionID)
	metrics.SessionsActive.Set(float64(len(c.entries)))
	c.mu.Unlock()
}

// sweep evicts sessions idle past the TTL. Called periodically by the
// store's janitor goroutine.
func (c *cache) sweep(now time.Time) {
	c.mu.Lock()
	var evicted []*model.Session
	for id, sess := range c.entries {
		if now.Sub(sess.LastActivity) > c.ttl {
			evicted = append(evicted, sess)
			delete(c.entries, id)
		}
	}
	metrics.SessionsActive.Set(float64(len(c.entries)))
	c.mu.Unlock()

	c.flush(evicted)
}

func (c *cache) evictOldestLocked() *model.Session {
	var oldest *model.Session
	for _, sess := range c.entries {
		if oldest == nil || sess.LastActivity.Before(oldest.LastActivity) {
			oldest = sess
		}
	}
	if oldest != nil {
		delete(c.entries, oldest.ID)
	}
	return oldest
}

func (c *cache) flush(sessions []*model.Session) {
	if c.onEvict == nil {
		return
	}
	for _, sess := range sessions {
		if sess != nil {
			c.onEvict(sess)
		}
	}
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
