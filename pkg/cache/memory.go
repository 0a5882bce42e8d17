// Package cache provides a thread-safe, in-memory key-value store with
// TTL-based expiration and size-bounded eviction.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"snapreport/pkg/logger"
	"snapreport/pkg/utils"
)

const (
	DefaultMaxSize = 64 // MB
	DefaultTTL     = 30 * time.Minute

	// GCInterval: expired items cleanup frequency.
	GCInterval = 5 * time.Minute

	// MonitorInterval: heartbeat logging.
	MonitorInterval = 30 * time.Minute

	// maxItemSize keeps full-size screenshots out of the heap; only
	// thumbnails are worth holding.
	maxItemSize = 512 * 1024
)

// Options configures a MemoryCache.
type Options struct {
	Enabled       bool
	MaxCapacityMB int
	TTL           time.Duration

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type Item struct {
	Data      []byte
	ExpiresAt time.Time
	Size      int64
}

type MemoryCache struct {
	sync.RWMutex
	items     map[string]Item
	totalSize int64
	maxSize   int64
	ttl       time.Duration
	enabled   bool
	now       func() time.Time
}

// New builds a cache. A disabled cache is a pass-through: Set drops, Get
// misses. Call Start to run the background workers.
func New(opts Options) *MemoryCache {
	limitMB := int64(opts.MaxCapacityMB)
	if limitMB <= 0 {
		limitMB = DefaultMaxSize
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &MemoryCache{
		maxSize: limitMB * 1024 * 1024,
		ttl:     ttl,
		enabled: opts.Enabled,
		now:     now,
	}

	if c.enabled {
		c.items = make(map[string]Item)
		logger.LogInfo("Memory Cache Initialized: %d MB Limit, TTL: %s", limitMB, ttl)
	} else {
		logger.LogWarn("Memory Cache is DISABLED via config (Running in pass-through mode).")
	}
	return c
}

// Start runs the GC and monitor workers until ctx is cancelled.
func (c *MemoryCache) Start(ctx context.Context) {
	if !c.enabled {
		return
	}
	go c.startGC(ctx)
	go c.startMonitor(ctx)
}

// Enabled reports whether the cache stores anything.
func (c *MemoryCache) Enabled() bool { return c.enabled }

// Set stores a value with the configured TTL. Items above 512KB or half the
// capacity are not cached.
func (c *MemoryCache) Set(key string, data []byte) {
	if !c.enabled {
		return
	}

	c.Lock()
	defer c.Unlock()

	size := int64(len(data))
	if size > c.maxSize/2 || size > maxItemSize {
		return
	}

	if old, exists := c.items[key]; exists {
		c.totalSize -= old.Size
		delete(c.items, key)
	}

	if c.totalSize+size > c.maxSize {
		c.prune()
	}

	c.items[key] = Item{
		Data:      data,
		ExpiresAt: c.now().Add(c.ttl),
		Size:      size,
	}
	c.totalSize += size
}

// Get retrieves an item if it exists and hasn't expired.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}

	c.RLock()
	defer c.RUnlock()

	item, found := c.items[key]
	if !found || c.now().After(item.ExpiresAt) {
		return nil, false
	}
	return item.Data, true
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) {
	if !c.enabled {
		return
	}

	c.Lock()
	defer c.Unlock()

	if item, found := c.items[key]; found {
		delete(c.items, key)
		c.totalSize -= item.Size
	}
}

// DeletePrefix removes every key starting with prefix, e.g. all thumbnail
// sizes of one report.
func (c *MemoryCache) DeletePrefix(prefix string) int {
	if !c.enabled {
		return 0
	}

	c.Lock()
	defer c.Unlock()

	n := 0
	for k, item := range c.items {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.items, k)
			c.totalSize -= item.Size
			n++
		}
	}
	return n
}

// Stats returns item count and bytes held.
func (c *MemoryCache) Stats() (int, int64) {
	c.RLock()
	defer c.RUnlock()
	return len(c.items), c.totalSize
}

// prune evicts the soonest-expiring items until usage drops below 80%.
// Caller holds the write lock.
func (c *MemoryCache) prune() {
	if len(c.items) == 0 {
		return
	}

	targetSize := int64(float64(c.maxSize) * 0.80)

	type candidate struct {
		Key       string
		ExpiresAt time.Time
		Size      int64
	}

	candidates := make([]candidate, 0, len(c.items))
	for k, v := range c.items {
		candidates = append(candidates, candidate{k, v.ExpiresAt, v.Size})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ExpiresAt.Before(candidates[j].ExpiresAt)
	})

	for _, cand := range candidates {
		if c.totalSize <= targetSize {
			break
		}
		delete(c.items, cand.Key)
		c.totalSize -= cand.Size
	}
}

// removeExpired drops expired items and returns count and bytes freed.
func (c *MemoryCache) removeExpired() (int, int64) {
	c.Lock()
	defer c.Unlock()

	now := c.now()
	removed, freed := 0, int64(0)
	for k, v := range c.items {
		if now.After(v.ExpiresAt) {
			delete(c.items, k)
			c.totalSize -= v.Size
			freed += v.Size
			removed++
		}
	}
	return removed, freed
}

func (c *MemoryCache) startGC(ctx context.Context) {
	ticker := time.NewTicker(GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, freed := c.removeExpired(); n > 0 {
				logger.LogDebug("[CACHE] GC: Cleaned %d items (%s freed)", n, utils.FormatBytes(freed))
			}
		}
	}
}

func (c *MemoryCache) startMonitor(ctx context.Context) {
	ticker := time.NewTicker(MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, used := c.Stats()
			if count == 0 {
				continue
			}
			percent := float64(used) / float64(c.maxSize) * 100
			logger.LogInfo("[CACHE] Cache: %d items | Usage: %s / %s (%.2f%%)",
				count, utils.FormatBytes(used), utils.FormatBytes(c.maxSize), percent)
		}
	}
}
