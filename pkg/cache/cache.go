package cache

import (
	"log"
	"sync"
	"time"

	"bibliostat-mcp/pkg/client"
)

// Entry holds one cached upstream response.
type Entry struct {
	Observations []client.Observation
	FetchedAt    time.Time
}

// ObservationCache caches upstream fetch results keyed by the encoded
// query, so repeated tool calls within the expiry window skip the network.
type ObservationCache interface {
	Get(key string) ([]client.Observation, bool)
	Set(key string, observations []client.Observation)
}

// ResultCache is a TTL cache over observation fetches.
type ResultCache struct {
	cache  map[string]Entry
	expiry time.Duration
	lock   sync.RWMutex
	logger *log.Logger
}

// NoopCache is a cache that does nothing, used when caching is disabled.
type NoopCache struct{}

var _ ObservationCache = (*ResultCache)(nil)
var _ ObservationCache = (*NoopCache)(nil)

// NewResultCache creates a new result cache.
func NewResultCache(expiry time.Duration, logger *log.Logger) *ResultCache {
	return &ResultCache{
		cache:  make(map[string]Entry),
		expiry: expiry,
		logger: logger,
	}
}

// Get retrieves a result from the cache.
func (c *ResultCache) Get(key string) ([]client.Observation, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	entry, found := c.cache[key]
	if !found {
		return nil, false
	}

	if time.Since(entry.FetchedAt) > c.expiry {
		c.logger.Printf("Cache entry expired: %s", key)
		return nil, false
	}

	c.logger.Printf("Cache hit: %s", key)
	return entry.Observations, true
}

// Set stores a result in the cache.
func (c *ResultCache) Set(key string, observations []client.Observation) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.cache[key] = Entry{Observations: observations, FetchedAt: time.Now()}
	c.logger.Printf("Cache entry set: %s", key)
}

// NewNoopCache creates a new no-op cache.
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

// Get always returns nothing for the no-op cache.
func (c *NoopCache) Get(key string) ([]client.Observation, bool) {
	return nil, false
}

// Set does nothing for the no-op cache.
func (c *NoopCache) Set(key string, observations []client.Observation) {}
