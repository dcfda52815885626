// Package artifact tracks metadata for generated audio so it can be
// re-served. The cache is in-memory only: metadata lives for the process
// lifetime while the waveforms themselves survive in the object store.
package artifact

import (
	"fmt"
	"sync"

	"github.com/book-expert/chatterbox-service/internal/core"
)

// Cache is an insertion-ordered map of audio id to artifact metadata. It is
// purely additive; there is no eviction or expiry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]core.AudioArtifact
	order   []string
}

// NewCache creates an empty artifact cache.
func NewCache() *Cache {
	return &Cache{
		mu:      sync.RWMutex{},
		entries: make(map[string]core.AudioArtifact),
		order:   nil,
	}
}

// Put inserts an artifact by its audio id. Ids are UUIDs, so a collision
// overwrite is tolerated rather than checked.
func (c *Cache) Put(entry core.AudioArtifact) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[entry.AudioID]; !exists {
		c.order = append(c.order, entry.AudioID)
	}

	c.entries[entry.AudioID] = entry
}

// Get returns the artifact for id, or core.ErrNotFound.
func (c *Cache) Get(id string) (core.AudioArtifact, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return core.AudioArtifact{}, fmt.Errorf("%w: audio '%s'", core.ErrNotFound, id)
	}

	return entry, nil
}

// List returns all artifacts in insertion order.
func (c *Cache) List() []core.AudioArtifact {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]core.AudioArtifact, 0, len(c.order))
	for _, id := range c.order {
		entries = append(entries, c.entries[id])
	}

	return entries
}

// Len returns the number of tracked artifacts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
