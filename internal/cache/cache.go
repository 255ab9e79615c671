package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kjstillabower/nostradamus/internal/models"
)

// Entry is a cached upstream payload. An entry past FreshUntil is stale but may
// still be served when the upstream fails.
type Entry struct {
	Value      models.WeatherPayload `json:"value"`
	StoredAt   time.Time             `json:"stored_at"`
	FreshUntil time.Time             `json:"fresh_until"`
}

// Fresh reports whether e may be served without refetching.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.FreshUntil)
}

// Cache stores weather payloads. Get returns stale entries too, until the backend
// drops them staleFor after they stop being fresh.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, value models.WeatherPayload, ttl time.Duration) error
}

// HistoryKey is the cache key of an archive fetch. Coordinates are rounded to
// four decimals (about 11 m) so nearby clicks share an entry.
func HistoryKey(lat, lon float64, startDate, endDate string) string {
	return fmt.Sprintf("history:%.4f,%.4f:%s:%s", lat, lon, startDate, endDate)
}

// ForecastKey is the cache key of a forecast fetch.
func ForecastKey(lat, lon float64, days int) string {
	return fmt.Sprintf("forecast:%.4f,%.4f:%d", lat, lon, days)
}

// InMemoryCache implements Cache with a mutex-guarded map. Entries are retained
// for ttl+staleFor and removed on access after that.
type InMemoryCache struct {
	mu       sync.RWMutex
	data     map[string]cacheEntry
	staleFor time.Duration
	now      func() time.Time
}

type cacheEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache that keeps entries staleFor past their TTL.
func NewInMemoryCache(staleFor time.Duration) *InMemoryCache {
	return &InMemoryCache{
		data:     make(map[string]cacheEntry),
		staleFor: staleFor,
		now:      time.Now,
	}
}

// Get returns the entry for key, fresh or stale, and whether it was found.
func (c *InMemoryCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	now := c.now()
	c.mu.RLock()
	ce, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if !now.Before(ce.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.data[key]; ok && !now.Before(cur.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return Entry{}, false, nil
	}
	return ce.entry, true, nil
}

// Set stores value fresh for ttl.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherPayload, ttl time.Duration) error {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		entry:     Entry{Value: value, StoredAt: now, FreshUntil: now.Add(ttl)},
		expiresAt: now.Add(ttl + c.staleFor),
	}
	return nil
}

// Len returns the number of retained entries, including expired ones not yet accessed.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
