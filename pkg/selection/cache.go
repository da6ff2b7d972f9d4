package selection

import (
	"sync"
	"time"

	"github.com/Russete77/migadigital/pkg/store"
)

// candidateCache holds template candidate lists per (emotion, urgency) key
// for a bounded time. Reads may serve stale-but-valid entries; concurrent
// duplicate fetches on a miss are acceptable.
type candidateCache struct {
	mu      sync.RWMutex
	entries map[string]candidateEntry
	ttl     time.Duration
}

type candidateEntry struct {
	templates []*store.Template
	expiresAt time.Time
}

func newCandidateCache(ttl time.Duration) *candidateCache {
	return &candidateCache{
		entries: make(map[string]candidateEntry),
		ttl:     ttl,
	}
}

func (c *candidateCache) get(key string) ([]*store.Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.templates, true
}

func (c *candidateCache) set(key string, templates []*store.Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = candidateEntry{templates: templates, expiresAt: time.Now().Add(c.ttl)}
}

// invalidate drops one key, used after a template deactivation so the dead
// template stops being served for up to a full TTL.
func (c *candidateCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
