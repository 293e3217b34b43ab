package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/camden-git/fleetinspectbackend/vision"
)

// MemoryCache is a process-local AnalysisCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, sourceURI string) (*Entry, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[sourceURI]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.Valid(c.now()) {
		c.mu.Lock()
		// only drop it if nobody refreshed it meanwhile
		if cur, still := c.entries[sourceURI]; still && !cur.Valid(c.now()) {
			delete(c.entries, sourceURI)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return &entry, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, sourceURI string, analysis *vision.Analysis) (*Entry, error) {
	if analysis == nil {
		return nil, fmt.Errorf("cache: nil analysis for %s", sourceURI)
	}
	now := c.now()
	entry := Entry{
		SourceURI: sourceURI,
		Analysis:  *analysis,
		StoredAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.mu.Lock()
	c.entries[sourceURI] = entry
	c.mu.Unlock()
	return &entry, nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
