package license

import (
	"sync"
	"time"

	"github.com/jhsobrinho/educareapp-sub000/pkg/contracts/domain"
)

// cacheEntry holds one cached validation result.
type cacheEntry struct {
	result    domain.ValidationResult
	cachedAt  time.Time
	expiresAt time.Time
	hitCount  int
}

// ValidationCache keeps recent validation results so repeated checks of
// the same license don't hit the store. Entries are invalidated on every
// license mutation.
type ValidationCache struct {
	entries   map[string]cacheEntry
	mutex     sync.Mutex
	ttl       time.Duration
	maxSize   int
	hitCount  int64
	missCount int64
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewValidationCache creates a cache with the given TTL and size bound.
func NewValidationCache(ttl time.Duration, maxSize int) *ValidationCache {
	cache := &ValidationCache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// Get retrieves a cached result for the license id.
func (c *ValidationCache) Get(licenseID string) (*domain.ValidationResult, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[licenseID]
	if !exists || time.Now().After(entry.expiresAt) {
		c.missCount++
		return nil, false
	}

	entry.hitCount++
	c.entries[licenseID] = entry
	c.hitCount++

	result := entry.result
	return &result, true
}

// Set stores a validation result.
func (c *ValidationCache) Set(licenseID string, result domain.ValidationResult) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.maxSize <= 0 {
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[licenseID] = cacheEntry{
		result:    result,
		cachedAt:  time.Now(),
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate removes the cached result for a license.
func (c *ValidationCache) Invalidate(licenseID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, licenseID)
}

// Stats returns cache counters for the debug endpoint.
func (c *ValidationCache) Stats() map[string]interface{} {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	totalRequests := c.hitCount + c.missCount
	hitRatio := float64(0)
	if totalRequests > 0 {
		hitRatio = float64(c.hitCount) / float64(totalRequests)
	}

	return map[string]interface{}{
		"entries":     len(c.entries),
		"max_size":    c.maxSize,
		"hit_count":   c.hitCount,
		"miss_count":  c.missCount,
		"hit_ratio":   hitRatio,
		"ttl_seconds": c.ttl.Seconds(),
	}
}

// Stop terminates the cleanup goroutine.
func (c *ValidationCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *ValidationCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.cachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.cachedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ValidationCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mutex.Unlock()
		case <-c.stopChan:
			return
		}
	}
}
